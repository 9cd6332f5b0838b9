// Package logx configures livescout's structured logging.
//
// A small wrapper (logx.Logger) on top of zerolog keeps:
//   - Console output readable (short timestamp, key=value fields)
//   - File output JSON-structured
//   - Components decoupled from the logging backend (zero value is a no-op)
package logx
