// Package notelog keeps an append-only record of displayed notifications.
//
// Drivers:
//   - "file": human-readable text log with size-based rotation, guarded by an
//     exclusive advisory lock so only one daemon writes it at a time
//   - "sqlite": one row per notification
package notelog
