// Package pkg provides shared utilities for the pciusb driver.
//
// This package contains common functionality used by the enumeration and
// binding engine and its hardware abstraction layers, including:
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel error types for the driver's failure taxonomy
//   - Component identifiers for log filtering
//
// # Logging
//
// The logging subsystem wraps [log/slog] with driver-specific context:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogInfo(pkg.ComponentBind, "unit created", "unit", 0)
//
// # Errors
//
// Failures are defined as sentinel values and wrapped with context:
//
//	if errors.Is(err, pkg.ErrResourceConflict) {
//	    // Another driver owns one of the unit's functions
//	}
//
// A [ConflictError] additionally names the current owner.
package pkg
