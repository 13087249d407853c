package services

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// TaskClientConfig points the client at the third-party task API.
type TaskClientConfig struct {
	BaseURL  string
	APIKey   string
	Lang     string
	Category string
}

// GradeResult is the grader's reply: the raw JSON body and its confidence field.
type GradeResult struct {
	Raw        json.RawMessage
	Confidence Confidence
}

// TaskClient proxies task picks and answer grading to the task API.
type TaskClient struct {
	cfg    TaskClientConfig
	client HTTPClient
}

func NewTaskClient(cfg TaskClientConfig, client HTTPClient) *TaskClient {
	if client == nil {
		client = http.DefaultClient
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.Lang == "" {
		cfg.Lang = "en"
	}
	if cfg.Category == "" {
		cfg.Category = "vqa"
	}
	return &TaskClient{cfg: cfg, client: client}
}

// NextTask returns the next task exactly as the task API produced it.
func (c *TaskClient) NextTask(ctx context.Context) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("lang", c.cfg.Lang)
	q.Set("category", c.cfg.Category)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/tasks/pick?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req, "failed to fetch task")
}

// Submit sends an answer for grading.
func (c *TaskClient) Submit(ctx context.Context, taskID, trackID, answer string) (*GradeResult, error) {
	form := url.Values{}
	form.Set("track_id", trackID)
	form.Set("solution", answer)
	endpoint := c.cfg.BaseURL + "/tasks/" + url.PathEscape(taskID) + "/submit"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	body, err := c.do(req, "task submission failed")
	if err != nil {
		return nil, err
	}
	var reply struct {
		Confidence json.RawMessage `json:"confidence"`
	}
	// Non-object bodies simply carry no confidence.
	_ = json.Unmarshal(body, &reply)
	return &GradeResult{Raw: body, Confidence: ParseConfidence(reply.Confidence)}, nil
}

func (c *TaskClient) do(req *http.Request, failure string) (json.RawMessage, error) {
	req.Header.Set("x-api-key", c.cfg.APIKey)
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, NewBadGatewayError(failure, err.Error())
	}
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, NewBadGatewayError(failure, err.Error())
	}
	if resp.StatusCode >= 300 {
		return nil, NewBadGatewayError(failure, strings.TrimSpace(string(b)))
	}
	if !json.Valid(b) {
		return nil, NewBadGatewayError(failure, "invalid JSON from task API")
	}
	return json.RawMessage(b), nil
}
