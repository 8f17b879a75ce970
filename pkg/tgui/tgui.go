package tgui

import "valwatch/internal/transport"

// Keyboard builds an inline keyboard row by row.
type Keyboard struct {
	rows [][]transport.Button
}

func NewKeyboard() *Keyboard { return &Keyboard{} }

// Row appends a row. Empty rows are skipped.
func (k *Keyboard) Row(btn ...transport.Button) *Keyboard {
	if len(btn) > 0 {
		k.rows = append(k.rows, btn)
	}
	return k
}

// Grid appends buttons laid out cols per row.
func (k *Keyboard) Grid(cols int, buttons []transport.Button) *Keyboard {
	if cols <= 0 {
		cols = 1
	}
	for len(buttons) > 0 {
		n := min(cols, len(buttons))
		k.Row(buttons[:n]...)
		buttons = buttons[n:]
	}
	return k
}

// Rows returns the keyboard. A keyboard without rows yields an empty
// non-nil slice, which clears an existing keyboard on edit.
func (k *Keyboard) Rows() [][]transport.Button {
	if k == nil {
		return nil
	}
	if k.rows == nil {
		return [][]transport.Button{}
	}
	return k.rows
}

// Btn creates a callback button with raw callback data.
func Btn(text, data string) transport.Button {
	return transport.Button{Text: text, Data: data}
}
