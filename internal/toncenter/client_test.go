package toncenter

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	electionsURL = "https://elections.test"
	telemetryURL = "https://telemetry.test"
	apiURL       = "https://api.test"
)

func newTestClient(t *testing.T, apiKey string) (*Client, *httpmock.MockTransport) {
	t.Helper()
	mt := httpmock.NewMockTransport()
	c := New(Config{
		APIKey:       apiKey,
		ElectionsURL: electionsURL,
		TelemetryURL: telemetryURL + "/",
		APIURL:       apiURL,
		Timeout:      time.Second,
		RetryDelay:   time.Millisecond,
	},
		WithHTTPClient(&http.Client{Transport: mt}),
		WithClock(func() time.Time { return time.Unix(1_700_000_000, 0) }),
	)
	return c, mt
}

const cyclesJSON = `[
  {"cycle_id": 200, "cycle_info": {"utime_since": 200, "utime_until": 300, "validators": []}},
  {"cycle_id": 100, "cycle_info": {"utime_since": 100, "utime_until": 200, "validators": [
    {"adnl_addr": "AAAA", "index": 0, "stake": 1000000000000, "weight": 17, "pubkey": "p0", "wallet_address": "w0"},
    {"adnl_addr": "BBBB", "index": 1, "stake": 2000000000000, "weight": 18, "pubkey": "p1", "wallet_address": "w1"}
  ]}}
]`

func TestValidationCycleSelectsCurrentAndPast(t *testing.T) {
	c, mt := newTestClient(t, "")
	mt.RegisterResponder(http.MethodGet, electionsURL+"/getValidationCycles",
		httpmock.NewStringResponder(200, cyclesJSON))

	cur, err := c.ValidationCycle(context.Background(), Current)
	require.NoError(t, err)
	assert.Equal(t, int64(200), cur.CycleID)

	past, err := c.ValidationCycle(context.Background(), Past)
	require.NoError(t, err)
	assert.Equal(t, int64(100), past.CycleID)
	assert.Equal(t, int64(200), past.CycleInfo.UtimeUntil)

	v, err := c.Validator(context.Background(), "bbbb", Past)
	require.NoError(t, err)
	assert.Equal(t, 1, v.Index)

	_, err = c.Validator(context.Background(), "CCCC", Past)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRetriesThenSucceeds(t *testing.T) {
	c, mt := newTestClient(t, "")
	calls := 0
	mt.RegisterResponder(http.MethodGet, electionsURL+"/getElections",
		func(req *http.Request) (*http.Response, error) {
			calls++
			if calls < 3 {
				return httpmock.NewStringResponse(502, "bad gateway"), nil
			}
			return httpmock.NewStringResponse(200, `[{"election_id": 5, "finished": false, "participants_list": [{"adnl_addr": "AAAA", "stake": 50000000000}]}]`), nil
		})

	e, err := c.ElectionData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, int64(5), e.ElectionID)
	require.Len(t, e.Participants, 1)
	assert.Equal(t, int64(50_000_000_000), e.Participants[0].Stake)
}

func TestGivesUpAfterThreeAttempts(t *testing.T) {
	c, mt := newTestClient(t, "secret")
	mt.RegisterResponder(http.MethodGet, electionsURL+"/getComplaints",
		httpmock.NewErrorResponder(errors.New("connection reset")))

	_, err := c.Complaints(context.Background(), 100)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstream)
	assert.NotContains(t, err.Error(), "secret")
	assert.Equal(t, 3, mt.GetTotalCallCount())
}

func TestNon200IsAnError(t *testing.T) {
	c, mt := newTestClient(t, "")
	mt.RegisterResponder(http.MethodGet, apiURL+"/api/qos/cycleScoreboard",
		httpmock.NewStringResponder(404, `{"error": "not found"}`))

	_, err := c.Scoreboard(context.Background(), 1)
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestAPIKeyAndQueryParameters(t *testing.T) {
	c, mt := newTestClient(t, "k3y")
	mt.RegisterResponderWithQuery(http.MethodGet, electionsURL+"/getComplaints",
		"election_id=100&limit=100&api_key=k3y",
		httpmock.NewStringResponder(200, `[{"election_id": 100, "adnl_addr": "AAAA", "is_passed": true, "suggested_fine": 50000000000}]`))

	complaints, err := c.Complaints(context.Background(), 100)
	require.NoError(t, err)
	require.Len(t, complaints, 1)
	assert.True(t, complaints[0].IsPassed)
	assert.Equal(t, int64(50_000_000_000), complaints[0].SuggestedFine)
}

func TestTelemetry(t *testing.T) {
	c, mt := newTestClient(t, "")
	body := `[{"adnl_address": "AAAA",
		"validatorStatus": {"out_of_sync": 3},
		"data": {"cpuLoad": [1, 2, 7.36], "cpuNumber": 8, "memory": {"usage": 30, "total": 64},
			"netLoad": [10, 20, 30], "validatorDiskName": "/dev/nvme0n1",
			"disksLoad": {"nvme0n1": [1, 2, 3]}, "disksLoadPercent": {"nvme0n1": [10, 20, 30]}}}]`
	mt.RegisterResponderWithQuery(http.MethodGet, telemetryURL+"/getTelemetryData",
		"timestamp_from=1699999900&adnl_address=AAAA",
		httpmock.NewStringResponder(200, body))
	mt.RegisterResponderWithQuery(http.MethodGet, telemetryURL+"/getTelemetryData",
		"timestamp_from=1699999900&adnl_address=BBBB",
		httpmock.NewStringResponder(200, `[]`))

	tel, err := c.Telemetry(context.Background(), "AAAA")
	require.NoError(t, err)
	assert.Equal(t, 8.0, tel.Data.CPUNumber)
	assert.Equal(t, []float64{10, 20, 30}, tel.Data.DisksLoadPercent["nvme0n1"])
	assert.Equal(t, 3.0, tel.ValidatorStatus.OutOfSync)

	_, err = c.Telemetry(context.Background(), "BBBB")
	assert.ErrorIs(t, err, ErrNoTelemetry)

	ok, err := c.SendsTelemetry(context.Background(), "BBBB")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValidatorEfficiencyRounds(t *testing.T) {
	c, mt := newTestClient(t, "")
	mt.RegisterResponder(http.MethodGet, apiURL+"/api/qos/cycleScoreboard",
		httpmock.NewStringResponder(200, `{"scoreboard": [{"adnl_addr": "AAAA", "efficiency": 97.4567}]}`))

	eff, err := c.ValidatorEfficiency(context.Background(), "AAAA", 100)
	require.NoError(t, err)
	assert.Equal(t, 97.46, eff)

	_, err = c.ValidatorEfficiency(context.Background(), "ZZZZ", 100)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCancelledContextStopsRetrying(t *testing.T) {
	c, mt := newTestClient(t, "")
	mt.RegisterResponder(http.MethodGet, electionsURL+"/getElections",
		httpmock.NewStringResponder(500, "boom"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Elections(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled) || strings.Contains(err.Error(), "canceled"))
}
