package dialogflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"support-mail-agent/internal/domain"
	"support-mail-agent/internal/integrations/paramstore"
)

const noMatch = "NO_MATCH"

// detectIntentRequest is the minimal request shape for the CX detectIntent
// endpoint.
type detectIntentRequest struct {
	QueryInput queryInput `json:"queryInput"`
}

type queryInput struct {
	Text         textInput `json:"text"`
	LanguageCode string    `json:"languageCode"`
}

type textInput struct {
	Text string `json:"text"`
}

// detectIntentResponse is the minimal response shape returned by detectIntent.
type detectIntentResponse struct {
	QueryResult struct {
		Match struct {
			MatchType string `json:"matchType"`
			Intent    struct {
				DisplayName string `json:"displayName"`
			} `json:"intent"`
		} `json:"match"`
		ResponseMessages []struct {
			Text struct {
				Text []string `json:"text"`
			} `json:"text"`
		} `json:"responseMessages"`
		CurrentPage struct {
			DisplayName string `json:"displayName"`
		} `json:"currentPage"`
	} `json:"queryResult"`
}

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("dialogflow: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client performs single detectIntent exchanges against a CX agent. The same
// opaque session id must be passed for every turn belonging to one session so
// the agent's per-session memory stays coherent; minting ids is the caller's
// job.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	getter       paramstore.Getter
	paramPrefix  string
	project      string
	location     string
	agentID      string
	languageCode string

	tokenOnce sync.Once
	token     string
	tokenErr  error
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithLanguageCode(code string) Option {
	return func(c *Client) {
		c.languageCode = code
	}
}

// NewClient creates a Client for one agent. The access token is fetched from
// the parameter store on the first call to DetectIntent and reused for the
// lifetime of the process.
func NewClient(ps paramstore.Getter, paramPrefix, project, location, agentID string, opts ...Option) (*Client, error) {
	if ps == nil {
		return nil, errors.New("dialogflow: paramstore getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("dialogflow: parameter prefix must not be empty")
	}
	if project == "" || location == "" || agentID == "" {
		return nil, errors.New("dialogflow: project, location and agent id are required")
	}
	c := &Client{
		baseURL:      fmt.Sprintf("https://%s-dialogflow.googleapis.com", location),
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		getter:       ps,
		paramPrefix:  paramPrefix,
		project:      project,
		location:     location,
		agentID:      agentID,
		languageCode: "en",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) resolveToken(ctx context.Context) (string, error) {
	c.tokenOnce.Do(func() {
		c.token, c.tokenErr = c.getter.Token(ctx, c.paramPrefix+"/nlu-token")
	})
	return c.token, c.tokenErr
}

func (c *Client) sessionURL(sessionID string) string {
	return fmt.Sprintf("%s/v3/projects/%s/locations/%s/agents/%s/sessions/%s:detectIntent",
		strings.TrimRight(c.baseURL, "/"), c.project, c.location, c.agentID, sessionID)
}

// DetectIntent runs one turn against the agent and returns the structured
// result. Matched is false when the agent reports NO_MATCH.
func (c *Client) DetectIntent(ctx context.Context, sessionID, utterance string) (domain.Turn, error) {
	if sessionID == "" {
		return domain.Turn{}, errors.New("dialogflow: session id must not be empty")
	}

	token, err := c.resolveToken(ctx)
	if err != nil {
		return domain.Turn{}, err
	}

	body, err := json.Marshal(detectIntentRequest{
		QueryInput: queryInput{
			Text:         textInput{Text: utterance},
			LanguageCode: c.languageCode,
		},
	})
	if err != nil {
		return domain.Turn{}, fmt.Errorf("dialogflow: marshal request: %w", err)
	}

	url := c.sessionURL(sessionID)

	req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if reqErr != nil {
		return domain.Turn{}, fmt.Errorf("dialogflow: create request: %w", reqErr)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	raw, err := c.doJSONRequest(req, url)
	if err != nil {
		return domain.Turn{}, fmt.Errorf("dialogflow: request failed: %w", err)
	}

	var payload detectIntentResponse
	if decErr := json.Unmarshal(raw, &payload); decErr != nil {
		return domain.Turn{}, fmt.Errorf("dialogflow: decode response: %w", decErr)
	}

	var fragments []string
	for _, msg := range payload.QueryResult.ResponseMessages {
		fragments = append(fragments, msg.Text.Text...)
	}

	return domain.Turn{
		Session:     sessionID,
		Intent:      payload.QueryResult.Match.Intent.DisplayName,
		Response:    strings.Join(fragments, " "),
		CurrentPage: payload.QueryResult.CurrentPage.DisplayName,
		Matched:     payload.QueryResult.Match.MatchType != noMatch,
	}, nil
}

func (c *Client) doJSONRequest(req *http.Request, url string) ([]byte, error) {
	res, doErr := c.httpClient.Do(req)
	if doErr != nil {
		return nil, doErr
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        url,
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}
