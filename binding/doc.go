// Package binding defines the domain resource an asynchronous operation
// targets — a route or credential service binding — together with the
// atomic save-with-operation persistence contract and the Backend
// capability set the polling job drives.
//
// The two binding kinds differ in what they send to the broker and what
// they store on success, but share the polling protocol. Each kind is a
// Backend implementation selected at job construction time, so the
// timeout and retry handling never diverges between them.
package binding
