// Package operation defines the durable record for an asynchronous
// binding operation and the persistence contract for claiming, updating,
// and pruning those records.
//
// An operation record carries a job's instance fields across scheduler
// invocations: which resource it targets, whether the initial bind call
// has been issued, the broker's operation key, and the polling interval
// for the next invocation. The underlying binding resource — not the
// operation record — is the durable record of the final outcome; terminal
// operation records may be pruned.
package operation
