package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"unicode/utf8"

	"github.com/ppiankov/hllm/internal/util"
)

// maxResponseBytes caps how much of a provider response is read
const maxResponseBytes = 4 << 20

// newHTTPClient builds the client shared by all calls of one adapter.
// Deadlines come from the request context, not from the client.
func newHTTPClient(config Config) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:               util.NewProxyFunc(config.HTTPProxy, config.HTTPSProxy, config.NoProxy),
			MaxIdleConnsPerHost: 4,
		},
	}
}

// doJSON posts (or gets, when payload is nil) JSON and decodes a 2xx response into out.
// errMessage extracts a provider-specific message from a non-2xx body.
func doJSON(ctx context.Context, client *http.Client, provider, url string, headers map[string]string, payload, out any, errMessage func([]byte) string) error {
	method := http.MethodGet
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return malformed(provider, "marshal request", err)
		}
		method = http.MethodPost
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return malformed(provider, "create request", err)
	}
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := client.Do(httpReq)
	if err != nil {
		return classifyTransport(provider, fmt.Errorf("execute request: %w", err))
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return classifyTransport(provider, fmt.Errorf("read response: %w", err))
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		msg := ""
		if errMessage != nil {
			msg = errMessage(respBody)
		}
		if msg == "" {
			msg = truncate(string(respBody), 200)
		}
		return statusError(provider, httpResp.StatusCode, msg)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return malformed(provider, "unmarshal response", err)
	}
	return nil
}

// truncate shortens s to at most n bytes without splitting a UTF-8 sequence
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
