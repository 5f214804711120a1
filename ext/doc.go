// Package ext defines the extension system for operation processing.
// Extensions are notified of lifecycle events (operation enqueued,
// polled, completed, timed out, etc.) and can react to them — audit
// events, metrics, logging.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package ext
