package alerts

// Alert kind ids. They are persisted in user preferences and in
// triggered-alert keys, so they never change.
const (
	FinesAlert            = "FinesAlert"
	TelemetryAlert        = "TelemetryAlert"
	ComplaintsSummary     = "ComplaintsSummary"
	ElectionParticipation = "ElectionParticipation"
)

// Kind is an immutable catalog entry.
type Kind struct {
	ID          string
	Name        string
	Description string
}

var catalog = []Kind{
	{ID: FinesAlert, Name: "Validator fines", Description: "Alert for validator fines"},
	{ID: TelemetryAlert, Name: "Telemetry", Description: "Alert for telemetry data"},
	{ID: ComplaintsSummary, Name: "Validators complaints", Description: "Alert for complaints on network validators"},
	{ID: ElectionParticipation, Name: "Elections", Description: "Alert for validators sending stakes"},
}

// Kinds returns the catalog in display order.
func Kinds() []Kind { return append([]Kind(nil), catalog...) }

// KindIDs returns every kind id in display order.
func KindIDs() []string {
	out := make([]string, 0, len(catalog))
	for _, k := range catalog {
		out = append(out, k.ID)
	}
	return out
}

func LookupKind(id string) (Kind, bool) {
	for _, k := range catalog {
		if k.ID == id {
			return k, true
		}
	}
	return Kind{}, false
}
