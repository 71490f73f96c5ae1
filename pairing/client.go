package pairing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Dosada05/tournament-progression/models"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTimeout       = 30 * time.Second
	CountyTimeout        = 5 * time.Minute
	SpecialTimeout       = 10 * time.Minute
	HealthCheckTimeout   = 5 * time.Second
	DefaultMaxAttempts   = 3
	DefaultRetryDelay    = 1 * time.Second
	maxResponseBodyBytes = 4 << 20
)

type Config struct {
	BaseURL        string
	APIKey         string
	DefaultTimeout time.Duration
	CountyTimeout  time.Duration
	SpecialTimeout time.Duration
	HealthTimeout  time.Duration
	MaxAttempts    int
	RetryDelay     time.Duration
	HTTPClient     *http.Client
	Logger         *slog.Logger
	// Sleep waits between retries; tests replace it to avoid wall-clock waits.
	Sleep func(ctx context.Context, d time.Duration) error
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
	health singleflight.Group
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("pairing service base URL is required")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultTimeout
	}
	if cfg.CountyTimeout <= 0 {
		cfg.CountyTimeout = CountyTimeout
	}
	if cfg.SpecialTimeout <= 0 {
		cfg.SpecialTimeout = SpecialTimeout
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = HealthCheckTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepContext
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		// Per-call deadlines come from the context, so the client itself has no timeout.
		httpClient = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, http: httpClient, logger: logger}, nil
}

// TimeoutFor returns the per-call deadline for a level. Special tournaments always get the longest one.
func (c *Client) TimeoutFor(level models.Level, special bool) time.Duration {
	switch {
	case special:
		return c.cfg.SpecialTimeout
	case level == models.LevelCounty:
		return c.cfg.CountyTimeout
	default:
		return c.cfg.DefaultTimeout
	}
}

func (c *Client) InitializeTournament(ctx context.Context, req InitializeRequest) *Result {
	if req.TournamentID <= 0 {
		return invalidRequest("tournament id must be positive")
	}
	return c.post(ctx, "/initialize-tournament", req, c.TimeoutFor(req.Level, req.Special))
}

func (c *Client) GenerateRound(ctx context.Context, req RoundRequest) *Result {
	if req.TournamentID <= 0 {
		return invalidRequest("tournament id must be positive")
	}
	if !req.Level.IsValid() {
		return invalidRequest(fmt.Sprintf("unknown level %q", req.Level))
	}
	return c.post(ctx, "/"+string(req.Level)+"/next-round", req, c.TimeoutFor(req.Level, req.Special))
}

func (c *Client) FinalizeWinners(ctx context.Context, req FinalizeRequest) *Result {
	if req.TournamentID <= 0 {
		return invalidRequest("tournament id must be positive")
	}
	return c.post(ctx, "/finalize", req, c.TimeoutFor(req.Level, req.Special))
}

func (c *Client) QueryPositions(ctx context.Context, req PositionsRequest) *Result {
	if req.TournamentID <= 0 {
		return invalidRequest("tournament id must be positive")
	}
	return c.post(ctx, "/tournament/positions", req, c.cfg.DefaultTimeout)
}

// HealthCheck is not retried. Concurrent callers share a single in-flight request; the shared
// request is detached from any one caller, so a cancelled caller only gives up its own wait.
func (c *Client) HealthCheck(ctx context.Context) *HealthResult {
	shared := context.WithoutCancel(ctx)
	ch := c.health.DoChan("health", func() (interface{}, error) {
		return c.doHealthCheck(shared), nil
	})
	select {
	case res := <-ch:
		return res.Val.(*HealthResult)
	case <-ctx.Done():
		return &HealthResult{Healthy: false, Message: fmt.Sprintf("health check abandoned: %v", ctx.Err())}
	}
}

func (c *Client) doHealthCheck(ctx context.Context) *HealthResult {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.HealthTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/health", nil)
	if err != nil {
		return &HealthResult{Healthy: false, Message: err.Error()}
	}
	c.setHeaders(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return &HealthResult{Healthy: false, Message: fmt.Sprintf("health check failed: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &HealthResult{Healthy: false, Message: fmt.Sprintf("health check returned HTTP %d", resp.StatusCode)}
	}
	var body struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBodyBytes)).Decode(&body); err != nil {
		return &HealthResult{Healthy: false, Message: fmt.Sprintf("invalid health response: %v", err)}
	}
	return &HealthResult{Healthy: body.Success, Message: body.Message}
}

// post runs the request with linear backoff. Only transport failures are retried.
func (c *Client) post(ctx context.Context, path string, payload interface{}, timeout time.Duration) *Result {
	body, err := json.Marshal(payload)
	if err != nil {
		return invalidRequest(fmt.Sprintf("failed to encode request: %v", err))
	}

	var last *Result
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		res := c.once(ctx, path, body, timeout)
		res.Attempts = attempt
		if res.Success || !res.Transport {
			return res
		}
		last = res
		c.logger.Warn("pairing service call failed",
			slog.String("path", path),
			slog.Int("attempt", attempt),
			slog.String("error_code", res.ErrorCode),
			slog.String("message", res.Message))

		if attempt == c.cfg.MaxAttempts || ctx.Err() != nil {
			break
		}
		if err := c.cfg.Sleep(ctx, c.cfg.RetryDelay*time.Duration(attempt)); err != nil {
			last.ErrorCode = ErrCodeCanceled
			last.Message = fmt.Sprintf("retry aborted: %v", err)
			break
		}
	}
	return last
}

func (c *Client) once(ctx context.Context, path string, body []byte, timeout time.Duration) *Result {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return invalidRequest(fmt.Sprintf("failed to build request: %v", err))
	}
	c.setHeaders(httpReq)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		code := ErrCodeTransport
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			code = ErrCodeTimeout
		case errors.Is(err, context.Canceled):
			code = ErrCodeCanceled
		}
		return &Result{ErrorCode: code, Message: err.Error(), Transport: true}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	if err != nil {
		return &Result{ErrorCode: ErrCodeTransport, Message: fmt.Sprintf("failed to read response: %v", err), Transport: true}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Result{
			ErrorCode: ErrCodeHTTPStatus,
			Message:   fmt.Sprintf("pairing service returned HTTP %d: %s", resp.StatusCode, truncate(string(raw), 256)),
			Transport: true,
		}
	}

	var decoded Response
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return &Result{ErrorCode: ErrCodeInvalidResponse, Message: fmt.Sprintf("failed to decode response: %v", err), Transport: true}
	}
	if !decoded.Success {
		code := decoded.ErrorCode
		if code == "" {
			code = ErrCodeEngineFailure
		}
		msg := decoded.Error
		if msg == "" {
			msg = "pairing service reported failure"
		}
		return &Result{Response: &decoded, ErrorCode: code, Message: msg}
	}
	return &Result{Success: true, Response: &decoded}
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
}

func invalidRequest(msg string) *Result {
	return &Result{ErrorCode: ErrCodeInvalidRequest, Message: msg}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
