// Package logx configures notification-thing's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Optional status sink: entries tagged with Notify() are surfaced to the
//     desktop as status notifications (min-level + rate limiting)
package logx
