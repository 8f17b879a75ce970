package alerts

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"valwatch/pkg/tgui"
)

const nano = 1_000_000_000

const utcLayout = "02.01.2006 15:04:05"

// FormatAmount renders n with a space as the thousands separator: 1234567 -> "1 234 567".
func FormatAmount(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

// Tons converts nanotons to whole tons, truncating.
func Tons(nanotons int64) int64 { return nanotons / nano }

// ADNLText renders an address for messages: first and last six characters
// when cut, followed by the label in parentheses when set.
func ADNLText(adnl, label string, cut bool) string {
	text := adnl
	if cut && len(adnl) > 12 {
		text = adnl[:6] + "..." + adnl[len(adnl)-6:]
	}
	if label != "" {
		text += " (" + label + ")"
	}
	return text
}

func utcTime(unix int64) string {
	return time.Unix(unix, 0).UTC().Format(utcLayout) + " UTC"
}

func percent(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func fineText(cycleID int64, adnl, label string, penalty int64) string {
	return fmt.Sprintf("🚨 <b>Validator fined</b>\n\n"+
		"Node %s was fined <b>%s TON</b> in validation cycle %s.\n\n"+
		"ADNL: %s",
		tgui.Code(ADNLText(adnl, label, true)),
		FormatAmount(penalty),
		tgui.Code(strconv.FormatInt(cycleID, 10)),
		tgui.Code(adnl),
	)
}

// metricReading carries the values a telemetry message mentions.
type metricReading struct {
	Metric    string
	Value     float64
	Threshold float64
	Detail    string
}

func telemetryText(adnl, label string, r metricReading, level Level) string {
	var head string
	switch {
	case r.Metric == MetricSync && level == Overloaded:
		head = "⚠️ <b>Node is out of sync</b>"
	case r.Metric == MetricSync:
		head = "✅ <b>Node is back in sync</b>"
	case level == Overloaded:
		head = fmt.Sprintf("⚠️ <b>%s load is high</b>", r.Metric)
	default:
		head = fmt.Sprintf("✅ <b>%s load is back to normal</b>", r.Metric)
	}

	var value string
	switch r.Metric {
	case MetricSync:
		value = fmt.Sprintf("Out of sync: <b>%s s</b> (threshold %s s)", percent(r.Value), percent(r.Threshold))
	case MetricNetwork:
		value = fmt.Sprintf("Network load: <b>%s Mbit/s</b> (threshold %s Mbit/s)", percent(r.Value), percent(r.Threshold))
	default:
		value = fmt.Sprintf("%s load: <b>%s%%</b> (threshold %s%%)", r.Metric, percent(r.Value), percent(r.Threshold))
	}

	lines := []string{head, "", "Node " + tgui.Code(ADNLText(adnl, label, true)).String(), value}
	if r.Detail != "" {
		lines = append(lines, tgui.Esc(r.Detail).String())
	}
	return strings.Join(lines, "\n")
}

type complaintLine struct {
	Index      string
	ADNL       string
	Efficiency string
	Penalty    int64
}

func complaintsSummaryText(cycleID, since, until int64, lines []complaintLine) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📋 <b>Complaints for validation cycle %d</b>\n", cycleID)
	fmt.Fprintf(&b, "%s - %s\n\n", utcTime(since), utcTime(until))
	if len(lines) == 0 {
		b.WriteString("No validators were fined in this cycle.")
		return b.String()
	}
	for _, l := range lines {
		fmt.Fprintf(&b, "#%s %s\nEfficiency: %s%%, penalty: <b>%s TON</b>\n\n",
			tgui.Esc(l.Index), tgui.Code(l.ADNL), tgui.Esc(l.Efficiency), FormatAmount(l.Penalty))
	}
	return strings.TrimRight(b.String(), "\n")
}

func stakeSentText(electionID int64, adnl, label string, stake int64) string {
	return fmt.Sprintf("✅ Stake of <b>%s TON</b> sent to election %s\n\nNode %s",
		FormatAmount(stake),
		tgui.Code(strconv.FormatInt(electionID, 10)),
		tgui.Code(ADNLText(adnl, label, false)),
	)
}

type absentNode struct {
	ADNL  string
	Label string
}

func stakeNotSentText(electionID int64, nodes []absentNode) string {
	var b strings.Builder
	fmt.Fprintf(&b, "❗️ <b>Stake not sent</b> to election %s by:\n\n", tgui.Code(strconv.FormatInt(electionID, 10)))
	for _, n := range nodes {
		b.WriteString(tgui.Code(ADNLText(n.ADNL, n.Label, false)).String())
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}
