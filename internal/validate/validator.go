package validate

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ppiankov/hllm/internal/model"
	"github.com/ppiankov/hllm/internal/util"
)

// validateSleepFunc is the sleep function used between retries (injectable for tests)
var validateSleepFunc = time.Sleep

// Validator classifies cited sources and, when enabled, checks that they are reachable
type Validator struct {
	httpClient *http.Client
	maxWorkers int
	maxRetries int
	checkLinks bool
	userAgent  string
	authority  *AuthorityClassifier
	robots     *util.RobotsChecker
	logger     *slog.Logger
}

// NewValidator creates a new validator
func NewValidator(cfg model.VerificationConfig, network model.NetworkConfig, logger *slog.Logger) *Validator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = model.DefaultConfig().Verification.UserAgent
	}
	if logger == nil {
		logger = slog.Default()
	}

	proxyFunc := util.NewProxyFunc(network.HTTPProxy, network.HTTPSProxy, network.NoProxy)

	v := &Validator{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				Proxy: proxyFunc,
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("stopped after 3 redirects")
				}
				return nil
			},
		},
		maxWorkers: cfg.Concurrency,
		maxRetries: cfg.MaxRetries,
		checkLinks: cfg.CheckLinks,
		userAgent:  cfg.UserAgent,
		authority:  NewAuthorityClassifier(&cfg.Authority),
		logger:     logger,
	}
	if cfg.RespectRobots {
		v.robots = util.NewRobotsChecker(cfg.UserAgent, cfg.Timeout, proxyFunc)
	}
	return v
}

// Validate classifies every source and, when link checks are enabled, probes them concurrently.
// The returned slice is a copy of sources in the same order.
func (v *Validator) Validate(ctx context.Context, sources []model.Source) []model.Source {
	out := make([]model.Source, len(sources))
	for i, s := range sources {
		s.Authority = v.authority.Classify(s.URL)
		out[i] = s
	}
	if !v.checkLinks || len(out) == 0 {
		return out
	}

	var wg sync.WaitGroup

	// Create semaphore to limit concurrent requests
	semaphore := make(chan struct{}, v.maxWorkers)

	for i := range out {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			select {
			case <-ctx.Done():
				out[idx].Check = &model.ValidationResult{
					URL:   out[idx].URL,
					Error: "context cancelled",
				}
				return
			case semaphore <- struct{}{}:
			}
			defer func() { <-semaphore }()

			result := v.checkWithRetry(ctx, out[idx].URL)
			out[idx].Check = &result
		}(i)
	}

	wg.Wait()

	v.logger.Debug("sources validated", "count", len(out))
	return out
}

// check probes one URL: robots.txt first, then HEAD with a GET fallback
func (v *Validator) check(ctx context.Context, rawURL string) model.ValidationResult {
	result := model.ValidationResult{URL: rawURL}

	if v.robots != nil && !v.robots.IsAllowed(ctx, rawURL) {
		result.Blocked = true
		result.Error = "disallowed by robots.txt"
		return result
	}

	resp, err := v.do(ctx, http.MethodHead, rawURL)
	if err == nil && (resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusNotImplemented) {
		_ = resp.Body.Close()
		resp, err = v.do(ctx, http.MethodGet, rawURL)
	}
	if err != nil {
		result.Error = fmt.Sprintf("request failed: %v", err)
		result.IsDead = true
		return result
	}
	defer func() { _ = resp.Body.Close() }()

	result.StatusCode = resp.StatusCode

	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		result.IsAccessible = true
	} else if resp.StatusCode == 404 || resp.StatusCode == 410 {
		result.IsDead = true
	}

	if final := resp.Request.URL.String(); final != rawURL {
		result.RedirectURL = final
	}

	if lastModified := resp.Header.Get("Last-Modified"); lastModified != "" {
		if t, err := http.ParseTime(lastModified); err == nil {
			result.LastModified = &t
		}
	}

	return result
}

func (v *Validator) do(ctx context.Context, method, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", v.userAgent)
	return v.httpClient.Do(req)
}

// checkWithRetry retries transient failures with exponential backoff
func (v *Validator) checkWithRetry(ctx context.Context, rawURL string) model.ValidationResult {
	var result model.ValidationResult
	attempts := v.maxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		result = v.check(ctx, rawURL)
		if !isRetryableValidationResult(result) || ctx.Err() != nil {
			return result
		}
		if attempt < attempts-1 {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			validateSleepFunc(backoff)
		}
	}
	return result
}

// isRetryableValidationResult returns true for results that indicate transient failures
func isRetryableValidationResult(result model.ValidationResult) bool {
	// Retry on 5xx server errors
	if result.StatusCode >= 500 && result.StatusCode < 600 {
		return true
	}
	// Retry on 429 rate limit
	if result.StatusCode == 429 {
		return true
	}
	return result.Error != "" && isRetryableNetworkError(result.Error)
}

// isRetryableNetworkError checks error strings for transient network failures
func isRetryableNetworkError(errMsg string) bool {
	s := strings.ToLower(errMsg)
	return strings.Contains(s, "timeout") ||
		strings.Contains(s, "connection refused") ||
		strings.Contains(s, "connection reset")
}
