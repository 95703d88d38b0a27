// Package oracle is the narrow client for the external text-to-command
// service. The core never interprets natural language itself; it sends the
// user's text out and gets a command string plus a risk tag back.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/halyard-dev/halyard/internal/errors"
)

// Risk levels the oracle may assign to a translated command.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// Translation is the oracle's answer for one natural-language request.
type Translation struct {
	Command              string `json:"command"`
	Explanation          string `json:"explanation"`
	RiskLevel            string `json:"riskLevel"`
	RequiresConfirmation bool   `json:"requiresConfirmation"`
}

// Client talks to the translation endpoint over HTTP.
type Client struct {
	endpoint string
	token    string
	http     *http.Client
}

// NewClient creates an oracle client. timeout bounds each request; zero
// means 30s.
func NewClient(endpoint, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		token:    token,
		http:     &http.Client{Timeout: timeout},
	}
}

type translateRequest struct {
	Text          string `json:"text"`
	SystemContext string `json:"systemContext,omitempty"`
}

// Translate converts natural-language text into a shell command.
// systemContext optionally describes the target host (distro, installed
// tools) so the oracle can pick matching commands.
func (c *Client) Translate(ctx context.Context, text, systemContext string) (*Translation, error) {
	if c.endpoint == "" {
		return nil, errors.New(errors.ErrOracle,
			"No translation endpoint configured",
			"Set oracle.endpoint in the config or HALYARD_ORACLE_ENDPOINT")
	}

	body, err := json.Marshal(translateRequest{Text: text, SystemContext: systemContext})
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrOracle, "Failed to encode translation request", "")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrOracle, "Failed to build translation request", "")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrOracle,
			"Translation service unreachable",
			"Check the oracle endpoint and your network connection")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.New(errors.ErrOracle,
			fmt.Sprintf("Translation service returned %d", resp.StatusCode),
			strings.TrimSpace(string(snippet)))
	}

	var t Translation
	if err := json.NewDecoder(resp.Body).Decode(&t); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrOracle, "Couldn't parse translation response", "")
	}

	if strings.TrimSpace(t.Command) == "" {
		return nil, errors.New(errors.ErrOracle,
			"Translation service returned no command",
			"Try rephrasing the request")
	}

	switch t.RiskLevel {
	case RiskLow, RiskMedium, RiskHigh:
	default:
		// Unknown tags are treated as the most cautious level.
		t.RiskLevel = RiskHigh
	}
	if t.RiskLevel == RiskHigh {
		t.RequiresConfirmation = true
	}

	return &t, nil
}
