package tgui

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"valwatch/internal/transport"
)

func TestDataRoundTrip(t *testing.T) {
	t.Parallel()
	d := Data(" alert ", "disable_no_edit", "TelemetryAlert")
	assert.Equal(t, "alert:disable_no_edit:TelemetryAlert", d)

	ns, action, payload, ok := ParseData(d)
	require.True(t, ok)
	assert.Equal(t, "alert", ns)
	assert.Equal(t, "disable_no_edit", action)
	assert.Equal(t, "TelemetryAlert", payload)

	ns, action, payload, ok = ParseData("nodes:page:2:x")
	require.True(t, ok)
	assert.Equal(t, []string{"nodes", "page", "2:x"}, []string{ns, action, payload})

	for _, bad := range []string{"", "alert", ":x", "alert:"} {
		_, _, _, ok := ParseData(bad)
		assert.False(t, ok, bad)
	}
}

func TestCheckData(t *testing.T) {
	t.Parallel()
	assert.NoError(t, CheckData(strings.Repeat("a", MaxCallbackDataLen)))
	assert.ErrorIs(t, CheckData(strings.Repeat("a", MaxCallbackDataLen+1)), ErrCallbackDataTooLong)
}

func TestKeyboardGrid(t *testing.T) {
	t.Parallel()
	btns := []transport.Button{Btn("1", "a"), Btn("2", "b"), Btn("3", "c")}
	rows := NewKeyboard().Grid(2, btns).Row().Row(Btn("x", "y")).Rows()
	require.Len(t, rows, 3)
	assert.Len(t, rows[0], 2)
	assert.Len(t, rows[1], 1)
	assert.Equal(t, "y", rows[2][0].Data)

	empty := NewKeyboard().Rows()
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestPaginate(t *testing.T) {
	t.Parallel()
	items := make([]int, 25)
	for i := range items {
		items[i] = i
	}

	p := Paginate(items, 1, 10)
	assert.Equal(t, []int{10, 11, 12, 13, 14, 15, 16, 17, 18, 19}, p.Items)
	assert.True(t, p.HasPrev)
	assert.True(t, p.HasNext)
	assert.Equal(t, "Page 2/3 • 11–20 of 25", p.Label())

	last := Paginate(items, 99, 10)
	assert.Equal(t, 2, last.Index)
	assert.Len(t, last.Items, 5)
	assert.False(t, last.HasNext)

	none := Paginate([]int(nil), 3, 10)
	assert.Empty(t, none.Items)
	assert.Equal(t, "Page 1/1", none.Label())
}

func TestBuilderEscapesAndSetsDefaults(t *testing.T) {
	t.Parallel()
	m := New().
		Title("📋", "Nodes <1>").
		KV("ADNL", "a&b").
		Blank().
		HTML(Code("x<y")).
		Keyboard(NewKeyboard().Row(Btn("Next", "nodes:page:1"))).
		Build()

	assert.Equal(t, "📋 <b>Nodes &lt;1&gt;</b>\n<b>ADNL</b>: a&amp;b\n\n<code>x&lt;y</code>", m.Text)
	assert.Equal(t, "HTML", m.Opt.ParseMode)
	assert.True(t, m.Opt.DisablePreview)
	require.Len(t, m.Opt.Buttons, 1)
}

func TestToastClamps(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "Telemetry enabled", Toast("Telemetry enabled"))

	long := strings.Repeat("é", MaxToastLen+5)
	got := Toast(long)
	assert.Equal(t, MaxToastLen, utf8.RuneCountInString(got))
	assert.True(t, strings.HasSuffix(got, "…"))
}

func TestHTMLHelpersEscape(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "<code>a&lt;b</code>", Code("a<b").String())
	assert.Equal(t, "<b>x &amp; y</b>", B("x & y").String())
	assert.Equal(t, "<i>n</i>", I("n").String())
}
