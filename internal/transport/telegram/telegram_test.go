package telegram

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"valwatch/internal/transport"
	logx "valwatch/pkg/logx"
)

func TestSplitTextShortIsUnchanged(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"hello"}, splitText("hello", 10, ""))
	assert.Equal(t, []string{""}, splitText("", 10, ""))
}

func TestSplitTextPrefersNewlines(t *testing.T) {
	t.Parallel()
	text := strings.Repeat("a", 6) + "\n" + strings.Repeat("b", 6)
	got := splitText(text, 10, "")
	assert.Equal(t, []string{"aaaaaa", "bbbbbb"}, got)
}

func TestSplitTextKeepsHTMLTagsWhole(t *testing.T) {
	t.Parallel()
	text := "xxxxxxx<code>abc</code>"
	got := splitText(text, 10, "HTML")
	require.GreaterOrEqual(t, len(got), 2)
	assert.Equal(t, "xxxxxxx", got[0])
	assert.True(t, strings.HasPrefix(got[1], "<code>"))
	assert.Equal(t, text, strings.Join(got, ""))
}

func TestSplitTextCountsRunes(t *testing.T) {
	t.Parallel()
	text := strings.Repeat("ё", 25)
	got := splitText(text, 10, "")
	require.Len(t, got, 3)
	for _, c := range got {
		assert.LessOrEqual(t, len([]rune(c)), 10)
	}
}

func TestSendOptionsConversion(t *testing.T) {
	t.Parallel()
	opt := &transport.SendOptions{
		ParseMode: "HTML",
		Silent:    true,
		Buttons:   [][]transport.Button{{{Text: "🔕 Disable", Data: "alert:disable_no_edit:CPU"}}, {}},
	}

	so := sendOptions(opt, 7, true)
	assert.Equal(t, tele.ModeHTML, so.ParseMode)
	assert.True(t, so.DisableNotification)
	assert.Equal(t, 7, so.ThreadID)
	require.NotNil(t, so.ReplyMarkup)
	require.Len(t, so.ReplyMarkup.InlineKeyboard, 1)
	assert.Equal(t, "alert:disable_no_edit:CPU", so.ReplyMarkup.InlineKeyboard[0][0].Data)

	assert.Nil(t, sendOptions(opt, 0, false).ReplyMarkup)
	assert.Nil(t, sendOptions(&transport.SendOptions{}, 0, true).ReplyMarkup)
}

func TestClassifyUnreachable(t *testing.T) {
	t.Parallel()
	for _, err := range []error{tele.ErrBlockedByUser, tele.ErrUserIsDeactivated, tele.ErrChatNotFound} {
		got := classify(fmt.Errorf("send: %w", err))
		assert.ErrorIs(t, got, transport.ErrUnreachable, err.Error())
		assert.ErrorIs(t, got, err)
	}
	other := errors.New("telegram: internal server error")
	assert.Same(t, other, classify(other))
}

func TestNewRequiresToken(t *testing.T) {
	t.Parallel()
	_, err := New(Config{Token: "  "}, logx.Nop())
	require.Error(t, err)

	a, err := New(Config{Token: "123:abc", Offline: true}, logx.Nop())
	require.NoError(t, err)
	assert.Equal(t, defaultPollTimeout, a.cfg.PollTimeout)
}

func TestForwardDropsWhenConsumerLags(t *testing.T) {
	t.Parallel()
	a, err := New(Config{Token: "123:abc", Offline: true}, logx.Nop())
	require.NoError(t, err)

	a.forward(transport.Update{Kind: transport.UpdateMessage})
	assert.Zero(t, a.dropped.Load(), "no consumer yet")

	out := make(chan transport.Update, 1)
	a.out.Store((chan<- transport.Update)(out))
	a.forward(transport.Update{Kind: transport.UpdateMessage})
	a.forward(transport.Update{Kind: transport.UpdateCallback})
	assert.Equal(t, uint64(1), a.dropped.Load())
	assert.Equal(t, transport.UpdateMessage, (<-out).Kind)
}
