package toncenter

// Cycle selects a validation cycle relative to now.
type Cycle int

const (
	Current Cycle = iota
	Past
)

func (c Cycle) String() string {
	if c == Past {
		return "past"
	}
	return "current"
}

// ValidationCycle is one entry of getValidationCycles. CycleID is also the
// election id that opened the cycle and its start time in unix seconds.
type ValidationCycle struct {
	CycleID   int64     `json:"cycle_id"`
	CycleInfo CycleInfo `json:"cycle_info"`
}

type CycleInfo struct {
	UtimeSince int64       `json:"utime_since"`
	UtimeUntil int64       `json:"utime_until"`
	Validators []Validator `json:"validators"`
}

type Validator struct {
	ADNLAddr      string `json:"adnl_addr"`
	Index         int    `json:"index"`
	Stake         int64  `json:"stake"`
	Weight        uint64 `json:"weight"`
	Pubkey        string `json:"pubkey"`
	WalletAddress string `json:"wallet_address"`
}

// Complaint amounts are in nanotons.
type Complaint struct {
	ElectionID        int64  `json:"election_id"`
	ADNLAddr          string `json:"adnl_addr"`
	IsPassed          bool   `json:"is_passed"`
	SuggestedFine     int64  `json:"suggested_fine"`
	SuggestedFinePart int64  `json:"suggested_fine_part"`
	Pubkey            string `json:"pubkey"`
	CreatedTime       int64  `json:"created_time"`
}

type Election struct {
	ElectionID   int64         `json:"election_id"`
	Finished     bool          `json:"finished"`
	Participants []Participant `json:"participants_list"`
}

type Participant struct {
	ADNLAddr      string `json:"adnl_addr"`
	Pubkey        string `json:"pubkey"`
	WalletAddress string `json:"wallet_address"`
	Stake         int64  `json:"stake"`
}

// Telemetry is the newest report a node pushed to the telemetry service.
type Telemetry struct {
	ADNLAddress     string          `json:"adnl_address"`
	ValidatorStatus ValidatorStatus `json:"validatorStatus"`
	Data            TelemetryData   `json:"data"`
}

type ValidatorStatus struct {
	OutOfSync float64 `json:"out_of_sync"`
}

// TelemetryData load series hold 1, 5 and 15 minute averages.
type TelemetryData struct {
	CPULoad           []float64            `json:"cpuLoad"`
	CPUNumber         float64              `json:"cpuNumber"`
	Memory            Memory               `json:"memory"`
	NetLoad           []float64            `json:"netLoad"`
	ValidatorDiskName string               `json:"validatorDiskName"`
	DisksLoad         map[string][]float64 `json:"disksLoad"`
	DisksLoadPercent  map[string][]float64 `json:"disksLoadPercent"`
}

type Memory struct {
	Usage float64 `json:"usage"`
	Total float64 `json:"total"`
}

type ScoreboardEntry struct {
	ADNLAddr   string  `json:"adnl_addr"`
	Efficiency float64 `json:"efficiency"`
}

type scoreboardResponse struct {
	Scoreboard []ScoreboardEntry `json:"scoreboard"`
}
