package mlservice

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

// predictRequest is the AutoML prediction request shape shared by the entity
// extraction and topic classification models.
type predictRequest struct {
	Payload struct {
		TextSnippet struct {
			Content  string `json:"content"`
			MimeType string `json:"mimeType"`
		} `json:"textSnippet"`
	} `json:"payload"`
}

type predictResponse struct {
	Payload []struct {
		DisplayName    string `json:"displayName"`
		TextExtraction struct {
			TextSegment struct {
				Content string `json:"content"`
			} `json:"textSegment"`
		} `json:"textExtraction"`
		Classification struct {
			Score float64 `json:"score"`
		} `json:"classification"`
	} `json:"payload"`
}

// sentimentRequest is the NL API analyzeSentiment request, used only for its
// side capability of segmenting a document into sentences.
type sentimentRequest struct {
	Document struct {
		Content string `json:"content"`
		Type    string `json:"type"`
	} `json:"document"`
}

type sentimentResponse struct {
	Sentences []struct {
		Text struct {
			Content string `json:"content"`
		} `json:"text"`
	} `json:"sentences"`
}

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("mlservice: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client wraps the prediction services used for text preprocessing and topic
// classification.
type Client struct {
	predictBaseURL  string
	languageBaseURL string
	httpClient      *http.Client
	getter          paramstore.Getter
	paramPrefix     string

	signatureModel string
	topicModel     string

	tokenOnce sync.Once
	token     string
	tokenErr  error
}

type Option func(*Client)

func WithPredictBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.predictBaseURL = strings.TrimSpace(baseURL)
	}
}

func WithLanguageBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.languageBaseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a Client for the given project's extraction and
// classification models.
func NewClient(ps paramstore.Getter, paramPrefix, project, location, signatureModelID, topicModelID string, opts ...Option) (*Client, error) {
	if ps == nil {
		return nil, errors.New("mlservice: paramstore getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("mlservice: parameter prefix must not be empty")
	}
	if project == "" || location == "" {
		return nil, errors.New("mlservice: project and location are required")
	}
	if signatureModelID == "" || topicModelID == "" {
		return nil, errors.New("mlservice: model ids are required")
	}
	c := &Client{
		predictBaseURL:  "https://automl.googleapis.com",
		languageBaseURL: "https://language.googleapis.com",
		httpClient:      &http.Client{Timeout: 10 * time.Second},
		getter:          ps,
		paramPrefix:     paramPrefix,
		signatureModel:  fmt.Sprintf("projects/%s/locations/%s/models/%s", project, location, signatureModelID),
		topicModel:      fmt.Sprintf("projects/%s/locations/%s/models/%s", project, location, topicModelID),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) resolveToken(ctx context.Context) (string, error) {
	c.tokenOnce.Do(func() {
		c.token, c.tokenErr = c.getter.Token(ctx, c.paramPrefix+"/prediction-token")
	})
	return c.token, c.tokenErr
}

// ExtractSignature strips the predicted signature entities from the body and
// returns the signature alongside the cleaned body.
func (c *Client) ExtractSignature(ctx context.Context, body string) (signature, cleanBody string, err error) {
	payload, err := c.predict(ctx, c.signatureModel, body)
	if err != nil {
		return "", "", fmt.Errorf("mlservice: extract signature: %w", err)
	}

	cleanBody = body
	for _, p := range payload.Payload {
		segment := p.TextExtraction.TextSegment.Content
		if segment == "" {
			continue
		}
		signature += segment
		cleanBody = strings.Replace(cleanBody, segment, "", 1)
	}
	return signature, strings.TrimSpace(cleanBody), nil
}

// ClassifyTopics returns the raw topic predictions with scores. Applying the
// confidence threshold is the caller's policy.
func (c *Client) ClassifyTopics(ctx context.Context, body string) ([]domain.TopicScore, error) {
	payload, err := c.predict(ctx, c.topicModel, body)
	if err != nil {
		return nil, fmt.Errorf("mlservice: classify topics: %w", err)
	}

	scores := make([]domain.TopicScore, 0, len(payload.Payload))
	for _, p := range payload.Payload {
		scores = append(scores, domain.TopicScore{Name: p.DisplayName, Score: p.Classification.Score})
	}
	return scores, nil
}

// SegmentSentences splits the cleaned body into its ordered sentences.
func (c *Client) SegmentSentences(ctx context.Context, body string) ([]string, error) {
	var req sentimentRequest
	req.Document.Content = body
	req.Document.Type = "PLAIN_TEXT"

	raw, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("mlservice: marshal sentences request: %w", err)
	}

	url := strings.TrimRight(c.languageBaseURL, "/") + "/v1/documents:analyzeSentiment"
	out, err := c.post(ctx, url, raw)
	if err != nil {
		return nil, fmt.Errorf("mlservice: segment sentences: %w", err)
	}

	var payload sentimentResponse
	if decErr := json.Unmarshal(out, &payload); decErr != nil {
		return nil, fmt.Errorf("mlservice: decode sentences response: %w", decErr)
	}

	sentences := make([]string, 0, len(payload.Sentences))
	for _, s := range payload.Sentences {
		sentences = append(sentences, s.Text.Content)
	}
	return sentences, nil
}

func (c *Client) predict(ctx context.Context, model, content string) (predictResponse, error) {
	var req predictRequest
	req.Payload.TextSnippet.Content = content
	req.Payload.TextSnippet.MimeType = "text/plain"

	raw, err := json.Marshal(req)
	if err != nil {
		return predictResponse{}, fmt.Errorf("marshal request: %w", err)
	}

	url := strings.TrimRight(c.predictBaseURL, "/") + "/v1/" + model + ":predict"
	out, err := c.post(ctx, url, raw)
	if err != nil {
		return predictResponse{}, err
	}

	var payload predictResponse
	if decErr := json.Unmarshal(out, &payload); decErr != nil {
		return predictResponse{}, fmt.Errorf("decode response: %w", decErr)
	}
	return payload, nil
}

func (c *Client) post(ctx context.Context, url string, body []byte) ([]byte, error) {
	token, err := c.resolveToken(ctx)
	if err != nil {
		return nil, err
	}

	req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if reqErr != nil {
		return nil, fmt.Errorf("create request: %w", reqErr)
	}
	req.Header.Set("Content-Type", "application/json")
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
