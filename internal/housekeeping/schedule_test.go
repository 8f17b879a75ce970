package housekeeping

import "testing"

func TestParseScheduleVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "cron", raw: "0 */6 * * *", want: "0 */6 * * *"},
		{name: "descriptor", raw: "@daily", want: "@daily"},
		{name: "every", raw: " @every 6h ", want: "@every 6h"},
		{name: "duration", raw: "90m", want: "@every 1h30m0s"},
		{name: "hhmm", raw: "06:00", want: "@every 6h0m0s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSchedule(tt.raw)
			if err != nil {
				t.Fatalf("ParseSchedule(%q) error: %v", tt.raw, err)
			}
			if got != tt.want {
				t.Fatalf("ParseSchedule(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseScheduleInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "not-a-schedule", "-5m", "00:00", "01:75", "61 * * * *"} {
		if _, err := ParseSchedule(raw); err == nil {
			t.Fatalf("ParseSchedule(%q): expected error", raw)
		}
	}
}
