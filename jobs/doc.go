// Package jobs contains the resumable asynchronous operation drivers.
//
// CreateBindingJob drives a broker-backed bind from "not started" to a
// terminal state across independent scheduler invocations: the first
// invocation issues the bind call (exactly once per operation), every
// later invocation polls the broker, and the scheduler re-invokes the job
// after the operation's polling interval until it finishes, fails, or
// exceeds its maximum duration. All failures leave the job as a typed
// *Failure — raw backend errors never escape.
package jobs
