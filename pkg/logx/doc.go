// Package logx configures valwatch's structured logging.
//
// Logger is a small value-type wrapper on top of zerolog:
//   - console output stays readable (short timestamp, file:line caller)
//   - file output is JSON
//   - an optional Telegram sink forwards warnings to an operator chat,
//     filtered by level and rate limited
package logx
