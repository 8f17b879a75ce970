// Package tgui provides small chat UI helpers:
//   - HTML escaping, inline formatting and toast clamping
//   - inline keyboard builders over transport.Button
//   - callback data helpers (namespace:action:payload)
//   - a message builder with sane defaults and pagination helpers
package tgui
