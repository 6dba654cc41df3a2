// Package bridge runs the USB-to-TCP video bridge: a [Supervisor] that
// scans for the device and a stream pump that reads bulk transfers and
// hands each one to the fan-out server.
//
// Everything runs on the caller's goroutine. The only blocking calls are
// the bulk transfers, bounded by their timeouts, and the backoff sleeps.
// Transport errors are mapped through [pkg.Classify]: a timeout with no
// data backs off and reads again, an abandon ends the session and the
// supervisor rescans, and anything else ends [Supervisor.Run] with the
// error. TCP clients survive every session change.
package bridge
