package gmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"support-mail-agent/internal/domain"
	"support-mail-agent/internal/integrations/paramstore"
)

// listResponse is the minimal shape of the messages.list response.
type listResponse struct {
	Messages []struct {
		ID       string `json:"id"`
		ThreadID string `json:"threadId"`
	} `json:"messages"`
}

// RawMessage is the messages.get response shape consumed by ParseMessage.
type RawMessage struct {
	ID       string  `json:"id"`
	ThreadID string  `json:"threadId"`
	Payload  Payload `json:"payload"`
}

type Payload struct {
	Headers []Header `json:"headers"`
	Parts   []Part   `json:"parts"`
}

type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type Part struct {
	MimeType string   `json:"mimeType"`
	Filename string   `json:"filename"`
	Body     PartBody `json:"body"`
}

type PartBody struct {
	Size         int    `json:"size"`
	Data         string `json:"data"`
	AttachmentID string `json:"attachmentId"`
}

type sendRequest struct {
	Raw      string `json:"raw"`
	ThreadID string `json:"threadId"`
}

type watchRequest struct {
	LabelIDs  []string `json:"labelIds"`
	TopicName string   `json:"topicName"`
}

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("gmail: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client is a focused Gmail REST client covering the operations the agent
// needs: finding the newest inbox message, sending a threaded reply, and
// renewing the push notification watch.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	getter      paramstore.Getter
	paramPrefix string

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

// NewClient creates a Client backed by the given paramstore.Getter for OAuth
// token retrieval. The token is fetched on first use and reused for the
// lifetime of the process.
func NewClient(ps paramstore.Getter, paramPrefix string, opts ...Option) (*Client, error) {
	if ps == nil {
		return nil, errors.New("gmail: paramstore getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("gmail: parameter prefix must not be empty")
	}
	c := &Client{
		baseURL:     "https://gmail.googleapis.com/gmail/v1",
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		getter:      ps,
		paramPrefix: paramPrefix,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) resolveToken(ctx context.Context) (string, error) {
	c.tokenOnce.Do(func() {
		c.token, c.tokenErr = c.getter.Token(ctx, c.paramPrefix+"/gmail-token")
	})
	return c.token, c.tokenErr
}

func (c *Client) userURL(mailbox, suffix string) string {
	return strings.TrimRight(c.baseURL, "/") + "/users/" + url.PathEscape(mailbox) + suffix
}

// LatestMessageID returns the id of the newest message in the mailbox, or
// empty when the mailbox is empty.
func (c *Client) LatestMessageID(ctx context.Context, mailbox string) (string, error) {
	raw, err := c.get(ctx, c.userURL(mailbox, "/messages?maxResults=1"))
	if err != nil {
		return "", fmt.Errorf("gmail: list messages: %w", err)
	}
	var payload listResponse
	if decErr := json.Unmarshal(raw, &payload); decErr != nil {
		return "", fmt.Errorf("gmail: decode list response: %w", decErr)
	}
	if len(payload.Messages) == 0 {
		return "", nil
	}
	return payload.Messages[0].ID, nil
}

// Message fetches the full message content by id.
func (c *Client) Message(ctx context.Context, mailbox, id string) (RawMessage, error) {
	raw, err := c.get(ctx, c.userURL(mailbox, "/messages/"+url.PathEscape(id)+"?format=full"))
	if err != nil {
		return RawMessage{}, fmt.Errorf("gmail: get message %q: %w", id, err)
	}
	var msg RawMessage
	if decErr := json.Unmarshal(raw, &msg); decErr != nil {
		return RawMessage{}, fmt.Errorf("gmail: decode message: %w", decErr)
	}
	return msg, nil
}

// MessageInfo fetches a message and extracts the fields the pipeline needs.
func (c *Client) MessageInfo(ctx context.Context, mailbox, id string) (domain.MessageInfo, error) {
	msg, err := c.Message(ctx, mailbox, id)
	if err != nil {
		return domain.MessageInfo{}, err
	}
	return ParseMessage(msg)
}

// SendReply sends an RFC822 message on the given thread. The raw message is
// base64url-encoded as the API requires.
func (c *Client) SendReply(ctx context.Context, threadID, rfc822 string) error {
	body, err := json.Marshal(sendRequest{
		Raw:      base64.RawURLEncoding.EncodeToString([]byte(rfc822)),
		ThreadID: threadID,
	})
	if err != nil {
		return fmt.Errorf("gmail: marshal send request: %w", err)
	}
	if _, err := c.post(ctx, c.userURL("me", "/messages/send"), body); err != nil {
		return fmt.Errorf("gmail: send reply: %w", err)
	}
	return nil
}

// Watch renews push notification delivery for the mailbox to the given
// Pub/Sub topic. Watches expire after seven days, so this is called on a
// schedule.
func (c *Client) Watch(ctx context.Context, mailbox, topicName string) error {
	body, err := json.Marshal(watchRequest{
		LabelIDs:  []string{"INBOX"},
		TopicName: topicName,
	})
	if err != nil {
		return fmt.Errorf("gmail: marshal watch request: %w", err)
	}
	if _, err := c.post(ctx, c.userURL(mailbox, "/watch"), body); err != nil {
		return fmt.Errorf("gmail: watch: %w", err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return c.doJSONRequest(ctx, req, url)
}

func (c *Client) post(ctx context.Context, url string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.doJSONRequest(ctx, req, url)
}

func (c *Client) doJSONRequest(ctx context.Context, req *http.Request, url string) ([]byte, error) {
	token, err := c.resolveToken(ctx)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

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
