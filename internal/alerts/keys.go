package alerts

import "strconv"

// Telemetry metric names used in keys and messages.
const (
	MetricSync    = "Sync"
	MetricCPU     = "CPU"
	MetricRAM     = "RAM"
	MetricNetwork = "Network"
	MetricDisk    = "Disk"
)

var telemetryMetrics = []string{MetricSync, MetricCPU, MetricRAM, MetricNetwork, MetricDisk}

func FinesKey(cycleID int64, adnl string) string {
	return FinesAlert + "-" + strconv.FormatInt(cycleID, 10) + "-" + adnl
}

func TelemetryKey(metric, adnl string) string {
	return TelemetryAlert + "-" + metric + "-" + adnl
}

// TelemetryKeyPrefix matches every telemetry record.
const TelemetryKeyPrefix = TelemetryAlert + "-"

func ComplaintsSummaryKey(cycleID int64) string {
	return ComplaintsSummary + "-" + strconv.FormatInt(cycleID, 10)
}

func StakeSentKey(electionID int64, adnl string) string {
	return ElectionParticipation + "-" + strconv.FormatInt(electionID, 10) + "-" + adnl
}

func StakeNotSentKey(electionID int64) string {
	return ElectionParticipation + "-" + strconv.FormatInt(electionID, 10)
}

// ParseTelemetryKey splits a telemetry key into metric and ADNL.
func ParseTelemetryKey(key string) (metric, adnl string, ok bool) {
	if len(key) <= len(TelemetryKeyPrefix) || key[:len(TelemetryKeyPrefix)] != TelemetryKeyPrefix {
		return "", "", false
	}
	rest := key[len(TelemetryKeyPrefix):]
	for _, m := range telemetryMetrics {
		if len(rest) > len(m)+1 && rest[:len(m)] == m && rest[len(m)] == '-' {
			return m, rest[len(m)+1:], true
		}
	}
	return "", "", false
}
