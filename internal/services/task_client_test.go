package services

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"testing"
)

type stubHTTPClient struct {
	resp *http.Response
	err  error
	req  *http.Request
	body string
}

func (c *stubHTTPClient) Do(req *http.Request) (*http.Response, error) {
	c.req = req
	if req.Body != nil {
		b, _ := io.ReadAll(req.Body)
		c.body = string(b)
	}
	return c.resp, c.err
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(bytes.NewBufferString(body))}
}

func TestTaskClientNextTask(t *testing.T) {
	client := &stubHTTPClient{resp: jsonResponse(200, `{"id":"T1","question":"what is this?"}`)}
	tc := NewTaskClient(TaskClientConfig{BaseURL: "https://tasks.example.com/", APIKey: "key"}, client)

	raw, err := tc.NextTask(context.Background())
	if err != nil {
		t.Fatalf("NextTask error: %v", err)
	}
	if string(raw) != `{"id":"T1","question":"what is this?"}` {
		t.Fatalf("unexpected body %s", raw)
	}
	if got := client.req.URL.String(); got != "https://tasks.example.com/tasks/pick?category=vqa&lang=en" {
		t.Fatalf("unexpected url %s", got)
	}
	if client.req.Header.Get("x-api-key") != "key" {
		t.Fatalf("expected x-api-key header")
	}
}

func TestTaskClientSubmit(t *testing.T) {
	client := &stubHTTPClient{resp: jsonResponse(200, `{"confidence":"0.92","status":"ok"}`)}
	tc := NewTaskClient(TaskClientConfig{BaseURL: "https://tasks.example.com", APIKey: "key"}, client)

	res, err := tc.Submit(context.Background(), "T 1", "track-7", "a red bus")
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	if !res.Confidence.Qualifies() || res.Confidence.Value != 0.92 {
		t.Fatalf("confidence = %+v", res.Confidence)
	}
	if client.req.Method != http.MethodPost || client.req.URL.Path != "/tasks/T 1/submit" {
		t.Fatalf("unexpected request %s %s", client.req.Method, client.req.URL)
	}
	if ct := client.req.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
		t.Fatalf("content type = %q", ct)
	}
	form, err := url.ParseQuery(client.body)
	if err != nil {
		t.Fatalf("parse form: %v", err)
	}
	if form.Get("track_id") != "track-7" || form.Get("solution") != "a red bus" {
		t.Fatalf("unexpected form %v", form)
	}
}

func TestTaskClientSubmitWithoutConfidence(t *testing.T) {
	tc := NewTaskClient(TaskClientConfig{BaseURL: "https://tasks.example.com"}, &stubHTTPClient{resp: jsonResponse(200, `["queued"]`)})
	res, err := tc.Submit(context.Background(), "T1", "tr", "x")
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	if res.Confidence.Valid {
		t.Fatalf("expected invalid confidence, got %+v", res.Confidence)
	}
}

func TestTaskClientBadGateway(t *testing.T) {
	cases := []struct {
		name   string
		client *stubHTTPClient
	}{
		{"upstream error status", &stubHTTPClient{resp: jsonResponse(500, `{"error":"down"}`)}},
		{"transport failure", &stubHTTPClient{err: io.ErrUnexpectedEOF}},
		{"non json body", &stubHTTPClient{resp: jsonResponse(200, `<html>`)}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			tc := NewTaskClient(TaskClientConfig{BaseURL: "https://tasks.example.com"}, c.client)
			_, err := tc.Submit(context.Background(), "T1", "tr", "x")
			if se, ok := AsServiceError(err); !ok || se.Code != ErrorBadGateway {
				t.Fatalf("expected bad gateway, got %v", err)
			}
		})
	}
}
