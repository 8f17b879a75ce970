// Package bot is the chat front-end: onboarding, node management and alert
// preferences. It reads updates from a transport.Adapter and writes through
// storage.Store; it never sends alert notices itself.
package bot
