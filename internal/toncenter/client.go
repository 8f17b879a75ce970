// Package toncenter is a typed client for the public elections, telemetry and
// scoreboard APIs. Every request is retried a bounded number of times with a
// fixed delay; nothing is cached.
package toncenter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"valwatch/internal/metrics"
	logx "valwatch/pkg/logx"
)

var (
	// ErrUpstream wraps the last error once every attempt failed.
	ErrUpstream = errors.New("toncenter: upstream request failed")
	// ErrNoTelemetry means the node pushed no telemetry in the recent window.
	ErrNoTelemetry = errors.New("toncenter: no recent telemetry")
	// ErrNotFound means the requested entity is absent from an otherwise valid response.
	ErrNotFound = errors.New("toncenter: not found")
)

const (
	DefaultElectionsURL = "https://elections.toncenter.com"
	DefaultTelemetryURL = "https://telemetry.toncenter.com"
	DefaultAPIURL       = "https://toncenter.com"

	telemetryWindow = 100 * time.Second
	maxBodyBytes    = 32 << 20
)

type Config struct {
	APIKey       string
	ElectionsURL string
	TelemetryURL string
	APIURL       string

	Timeout    time.Duration // per attempt; default 30s
	Attempts   int           // default 3
	RetryDelay time.Duration // default 1s
	RatePerSec float64       // 0 disables client-side limiting
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.ElectionsURL) == "" {
		c.ElectionsURL = DefaultElectionsURL
	}
	if strings.TrimSpace(c.TelemetryURL) == "" {
		c.TelemetryURL = DefaultTelemetryURL
	}
	if strings.TrimSpace(c.APIURL) == "" {
		c.APIURL = DefaultAPIURL
	}
	c.ElectionsURL = strings.TrimRight(c.ElectionsURL, "/")
	c.TelemetryURL = strings.TrimRight(c.TelemetryURL, "/")
	c.APIURL = strings.TrimRight(c.APIURL, "/")
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Attempts <= 0 {
		c.Attempts = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Second
	}
	return c
}

type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	log     logx.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*Client)

func WithLogger(log logx.Logger) Option { return func(c *Client) { c.log = log } }

func WithMetrics(m *metrics.Metrics) Option { return func(c *Client) { c.metrics = m } }

// WithHTTPClient replaces the transport, mainly for tests.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

func WithClock(now func() time.Time) Option { return func(c *Client) { c.now = now } }

func New(cfg Config, opts ...Option) *Client {
	c := &Client{
		cfg:  cfg.withDefaults(),
		http: &http.Client{},
		now:  time.Now,
	}
	if c.cfg.RatePerSec > 0 {
		burst := int(math.Ceil(c.cfg.RatePerSec))
		c.limiter = rate.NewLimiter(rate.Limit(c.cfg.RatePerSec), burst)
	}
	for _, o := range opts {
		o(c)
	}
	if c.log.IsZero() {
		c.log = logx.Nop()
	}
	return c
}

// ValidationCycles returns the two newest cycles, newest first.
func (c *Client) ValidationCycles(ctx context.Context) ([]ValidationCycle, error) {
	var out []ValidationCycle
	q := url.Values{"limit": {"2"}}
	if err := c.getJSON(ctx, "validation_cycles", c.cfg.ElectionsURL+"/getValidationCycles", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ValidationCycle(ctx context.Context, which Cycle) (ValidationCycle, error) {
	cycles, err := c.ValidationCycles(ctx)
	if err != nil {
		return ValidationCycle{}, err
	}
	idx := int(which)
	if idx < 0 || idx >= len(cycles) {
		return ValidationCycle{}, fmt.Errorf("%w: %s validation cycle (got %d cycles)", ErrNotFound, which, len(cycles))
	}
	return cycles[idx], nil
}

func (c *Client) Validators(ctx context.Context, which Cycle) ([]Validator, error) {
	cycle, err := c.ValidationCycle(ctx, which)
	if err != nil {
		return nil, err
	}
	return cycle.CycleInfo.Validators, nil
}

func (c *Client) Validator(ctx context.Context, adnl string, which Cycle) (Validator, error) {
	validators, err := c.Validators(ctx, which)
	if err != nil {
		return Validator{}, err
	}
	for _, v := range validators {
		if strings.EqualFold(v.ADNLAddr, adnl) {
			return v, nil
		}
	}
	return Validator{}, fmt.Errorf("%w: validator %s", ErrNotFound, adnl)
}

func (c *Client) Complaints(ctx context.Context, cycleID int64) ([]Complaint, error) {
	var out []Complaint
	q := url.Values{
		"election_id": {strconv.FormatInt(cycleID, 10)},
		"limit":       {"100"},
	}
	if err := c.getJSON(ctx, "complaints", c.cfg.ElectionsURL+"/getComplaints", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Elections returns elections newest first.
func (c *Client) Elections(ctx context.Context) ([]Election, error) {
	var out []Election
	if err := c.getJSON(ctx, "elections", c.cfg.ElectionsURL+"/getElections", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ElectionData returns the current election.
func (c *Client) ElectionData(ctx context.Context) (Election, error) {
	elections, err := c.Elections(ctx)
	if err != nil {
		return Election{}, err
	}
	if len(elections) == 0 {
		return Election{}, fmt.Errorf("%w: no elections", ErrNotFound)
	}
	return elections[0], nil
}

// Telemetry returns the newest report the node sent within the last 100 seconds.
func (c *Client) Telemetry(ctx context.Context, adnl string) (Telemetry, error) {
	var out []Telemetry
	from := c.now().Add(-telemetryWindow).Unix()
	q := url.Values{
		"timestamp_from": {strconv.FormatInt(from, 10)},
		"adnl_address":   {adnl},
	}
	if err := c.getJSON(ctx, "telemetry", c.cfg.TelemetryURL+"/getTelemetryData", q, &out); err != nil {
		return Telemetry{}, err
	}
	if len(out) == 0 {
		return Telemetry{}, fmt.Errorf("%w: %s", ErrNoTelemetry, adnl)
	}
	return out[0], nil
}

// SendsTelemetry reports whether the node pushed telemetry recently.
func (c *Client) SendsTelemetry(ctx context.Context, adnl string) (bool, error) {
	_, err := c.Telemetry(ctx, adnl)
	if errors.Is(err, ErrNoTelemetry) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *Client) Scoreboard(ctx context.Context, cycleID int64) ([]ScoreboardEntry, error) {
	var out scoreboardResponse
	q := url.Values{
		"cycle_id": {strconv.FormatInt(cycleID, 10)},
		"limit":    {"1000"},
	}
	if err := c.getJSON(ctx, "scoreboard", c.cfg.APIURL+"/api/qos/cycleScoreboard", q, &out); err != nil {
		return nil, err
	}
	return out.Scoreboard, nil
}

// ValidatorEfficiency returns the node's efficiency in the cycle rounded to two decimals.
func (c *Client) ValidatorEfficiency(ctx context.Context, adnl string, cycleID int64) (float64, error) {
	board, err := c.Scoreboard(ctx, cycleID)
	if err != nil {
		return 0, err
	}
	eff, ok := EfficiencyOf(board, adnl)
	if !ok {
		return 0, fmt.Errorf("%w: efficiency of %s in cycle %d", ErrNotFound, adnl, cycleID)
	}
	return eff, nil
}

// EfficiencyOf looks adnl up in a fetched scoreboard.
func EfficiencyOf(board []ScoreboardEntry, adnl string) (float64, bool) {
	for _, e := range board {
		if strings.EqualFold(e.ADNLAddr, adnl) {
			return math.Round(e.Efficiency*100) / 100, true
		}
	}
	return 0, false
}

func (c *Client) getJSON(ctx context.Context, endpoint, base string, q url.Values, dst any) error {
	if q == nil {
		q = url.Values{}
	}
	if c.cfg.APIKey != "" {
		q.Set("api_key", c.cfg.APIKey)
	}
	u := base
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var lastErr error
	for attempt := 1; attempt <= c.cfg.Attempts; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		lastErr = c.fetchOnce(ctx, u, dst)
		if lastErr == nil {
			c.metrics.UpstreamRequest(endpoint, "ok")
			return nil
		}
		c.metrics.UpstreamRequest(endpoint, "error")
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Debug("upstream attempt failed",
			logx.String("endpoint", endpoint),
			logx.Int("attempt", attempt),
			logx.Err(lastErr),
		)
		if attempt == c.cfg.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.RetryDelay):
		}
	}
	return fmt.Errorf("%w: %s after %d attempts: %v", ErrUpstream, endpoint, c.cfg.Attempts, lastErr)
}

func (c *Client) fetchOnce(ctx context.Context, u string, dst any) error {
	actx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(actx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// *url.Error embeds the request URL, which carries the api key.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			return fmt.Errorf("%s: %w", uerr.Op, uerr.Err)
		}
		return err
	}
	defer resp.Body.Close()

	body := io.LimitReader(resp.Body, maxBodyBytes)
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, body)
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}
