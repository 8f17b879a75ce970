package alerts

// Level is the outcome of comparing a metric against a Band.
type Level int

const (
	NoChange Level = iota
	Overloaded
	Recovered
)

func (l Level) String() string {
	switch l {
	case Overloaded:
		return "overloaded"
	case Recovered:
		return "recovered"
	default:
		return "no_change"
	}
}

// Band is an upper/lower hysteresis pair. Values between the bounds (inclusive)
// keep the previous state.
type Band struct {
	Upper float64
	Lower float64
}

// Classify is Overloaded above upper, Recovered below lower and NoChange otherwise.
func Classify(value, upper, lower float64) Level {
	switch {
	case value > upper:
		return Overloaded
	case value < lower:
		return Recovered
	default:
		return NoChange
	}
}

func (b Band) Classify(value float64) Level { return Classify(value, b.Upper, b.Lower) }

// Thresholds holds one band per telemetry metric.
type Thresholds struct {
	Sync    Band // seconds out of sync
	CPU     Band // percent of cores
	RAM     Band // percent of memory
	Network Band // Mbit/s, 15 minute average
	Disk    Band // percent busy
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		Sync:    Band{Upper: 40, Lower: 20},
		CPU:     Band{Upper: 90, Lower: 85},
		RAM:     Band{Upper: 90, Lower: 85},
		Network: Band{Upper: 500, Lower: 450},
		Disk:    Band{Upper: 90, Lower: 80},
	}
}
