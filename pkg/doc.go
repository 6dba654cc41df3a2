// Package pkg provides shared utilities for the usb2sock bridge.
//
// This package contains common functionality used by the USB, fan-out and
// supervisor layers, including:
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel errors for transport and socket outcomes
//   - The [Disposition] retry classification and exit-code mapping
//
// # Logging
//
// The logging subsystem wraps [log/slog] with component context:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogInfo(pkg.ComponentUSB, "interface claimed", "iface", 3)
//
// # Errors
//
// Transport failures carry the library's numeric code in a
// [TransportError] and unwrap to a sentinel that decides recovery:
//
//	switch pkg.Classify(err) {
//	case pkg.DispositionAbandon:
//	    // close the session, rescan for the device
//	}
package pkg
