// Package broker provides the service-broker client for asynchronous
// bind operations: the bind call itself (accepts_incomplete=true), the
// last_operation poll, and the binding fetch that retrieves credentials
// once an asynchronous bind succeeds.
//
// The Client interface is what binding backends consume; HTTPClient is
// the Open Service Broker API implementation. Tests substitute fakes.
package broker
