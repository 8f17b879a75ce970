package tgui

import "unicode/utf8"

// MaxToastLen is the longest callback answer Telegram shows, in runes.
const MaxToastLen = 200

// Toast clamps s to MaxToastLen runes, ending with "…" when cut.
func Toast(s string) string {
	if utf8.RuneCountInString(s) <= MaxToastLen {
		return s
	}
	r := []rune(s)
	return string(r[:MaxToastLen-1]) + "…"
}
