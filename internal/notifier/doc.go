// Package notifier delivers alert notices to users over the chat transport.
//
// Each notice goes out once, synchronously, behind a shared rate limiter and
// a per-send timeout. Messages carry an inline button that disables the
// notice's alert kind. Failures are logged and counted but never retried:
// recipients who blocked the bot are logged at info, anything else at warn.
//
// A small in-memory history of recent deliveries is kept for the debug server.
package notifier
