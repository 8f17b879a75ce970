package tgui

import (
	"context"
	"strings"

	"valwatch/internal/transport"
)

// Message is rendered text plus its send options.
type Message struct {
	Text string
	Opt  *transport.SendOptions
}

func (m Message) Send(ctx context.Context, s transport.Sender, to transport.ChatTarget) (transport.MessageRef, error) {
	return s.SendText(ctx, to, m.Text, m.Opt)
}

func (m Message) Edit(ctx context.Context, a transport.Adapter, ref transport.MessageRef) error {
	return a.EditText(ctx, ref, m.Text, m.Opt)
}

// Builder assembles an HTML message line by line. Plain strings are
// escaped; H values are trusted. Defaults: ParseMode=HTML, previews off.
type Builder struct {
	lines  []string
	kb     *Keyboard
	silent bool
}

func New() *Builder { return &Builder{} }

// Title adds a bold title line with an optional emoji.
func (b *Builder) Title(emoji, title string) *Builder {
	t := B(strings.TrimSpace(title)).String()
	if e := strings.TrimSpace(emoji); e != "" {
		t = e + " " + t
	}
	b.lines = append(b.lines, t)
	return b
}

func (b *Builder) Line(s string) *Builder {
	b.lines = append(b.lines, Esc(s).String())
	return b
}

func (b *Builder) HTML(h H) *Builder {
	b.lines = append(b.lines, h.String())
	return b
}

func (b *Builder) Blank() *Builder {
	b.lines = append(b.lines, "")
	return b
}

// KV adds "key: value" with a bold key.
func (b *Builder) KV(key, value string) *Builder {
	b.lines = append(b.lines, B(key).String()+": "+Esc(value).String())
	return b
}

func (b *Builder) Keyboard(kb *Keyboard) *Builder {
	b.kb = kb
	return b
}

func (b *Builder) Silent(v bool) *Builder {
	b.silent = v
	return b
}

func (b *Builder) Build() Message {
	opt := &transport.SendOptions{ParseMode: "HTML", DisablePreview: true, Silent: b.silent}
	if b.kb != nil {
		opt.Buttons = b.kb.Rows()
	}
	return Message{Text: strings.Join(b.lines, "\n"), Opt: opt}
}
