// Package oracle implements the REST client for an external answer service
// used to resolve oracle-policy pools. The client only transports the
// answer; validating it against the pool's options is the engine's job.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/resolvd/resolvd/internal/domain"
)

// Client is the REST client for the oracle answer API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates an oracle client.
//
// baseURL is the oracle API root, e.g. "https://oracle.example.com".
// timeout bounds each answer request; past it the pool stays unresolved and
// the call reports domain.ErrOracleTimeout.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type answerRequest struct {
	PoolID  string   `json:"pool_id"`
	Options []string `json:"options"`
}

type answerResponse struct {
	Answer string `json:"answer"`
}

// Answer asks the oracle to pick one of the pool's options.
func (c *Client) Answer(ctx context.Context, poolID string, options []string) (string, error) {
	payload, err := json.Marshal(answerRequest{PoolID: poolID, Options: options})
	if err != nil {
		return "", fmt.Errorf("oracle: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/answers", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("oracle: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return "", fmt.Errorf("oracle: answer for pool %s: %w", poolID, domain.ErrOracleTimeout)
		}
		return "", fmt.Errorf("oracle: http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("oracle: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("oracle: answer for pool %s: status %d: %s", poolID, resp.StatusCode, truncate(body))
	}

	var ar answerResponse
	if err := json.Unmarshal(body, &ar); err != nil {
		return "", fmt.Errorf("oracle: decode answer: %w", err)
	}
	if ar.Answer == "" {
		return "", fmt.Errorf("oracle: empty answer for pool %s: %w", poolID, domain.ErrInvalidOption)
	}
	return ar.Answer, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne interface{ Timeout() bool }
	return errors.As(err, &ne) && ne.Timeout()
}

func truncate(b []byte) string {
	const max = 256
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
