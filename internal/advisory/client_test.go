package advisory

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"helplink/internal/apperr"
	"helplink/internal/entity"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New("key-test",
		WithBaseURL(srv.URL),
		WithHTTPClient(srv.Client()),
		WithRateLimit(1000),
	)
}

func textResponse(parts ...string) map[string]any {
	wp := make([]map[string]string, len(parts))
	for i, p := range parts {
		wp[i] = map[string]string{"text": p}
	}
	return map[string]any{
		"candidates": []map[string]any{
			{"content": map[string]any{"parts": wp}},
		},
	}
}

func TestAdvice(t *testing.T) {
	t.Parallel()
	var gotReq wireRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-goog-api-key") != "key-test" {
			t.Errorf("api key header = %q", r.Header.Get("x-goog-api-key"))
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		resp := textResponse("Shut off the ", "main valve first.")
		resp["candidates"].([]map[string]any)[0]["groundingMetadata"] = map[string]any{
			"groundingChunks": []map[string]any{
				{"web": map[string]string{"uri": "https://example.com/valves", "title": "Valve guide"}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	})

	reply, err := c.Advice(context.Background(), AdviceRequest{
		Thread: []entity.Message{
			{Role: entity.MessageUser, Text: "My pipe burst, what do I do?"},
		},
	})
	if err != nil {
		t.Fatalf("Advice: %v", err)
	}
	if reply.Text != "Shut off the main valve first." {
		t.Fatalf("Text = %q", reply.Text)
	}
	if len(reply.Sources) != 1 || reply.Sources[0].URI != "https://example.com/valves" {
		t.Fatalf("Sources = %+v", reply.Sources)
	}
	if gotReq.SystemInstruction == nil {
		t.Fatal("system instruction missing")
	}
	if len(gotReq.Contents) != 1 || gotReq.Contents[0].Role != "user" {
		t.Fatalf("contents = %+v", gotReq.Contents)
	}
}

func TestAdviceMapsModelRole(t *testing.T) {
	t.Parallel()
	var gotReq wireRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_ = json.NewEncoder(w).Encode(textResponse("ok"))
	})

	_, err := c.Advice(context.Background(), AdviceRequest{
		Thread: []entity.Message{
			{Role: entity.MessageUser, Text: "hi"},
			{Role: entity.MessageModel, Text: "hello"},
			{Role: entity.MessageUser, Text: "next"},
		},
	})
	if err != nil {
		t.Fatalf("Advice: %v", err)
	}
	if len(gotReq.Contents) != 3 || gotReq.Contents[1].Role != "model" {
		t.Fatalf("contents = %+v", gotReq.Contents)
	}
}

func TestAdviceContextAndImage(t *testing.T) {
	t.Parallel()
	var gotReq wireRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_ = json.NewEncoder(w).Encode(textResponse("looks like corrosion"))
	})

	_, err := c.Advice(context.Background(), AdviceRequest{
		Thread: []entity.Message{
			{Role: entity.MessageUser, Text: "What is this on the pipe?"},
		},
		ContextSummary: "Basement plumbing, installed 1994.",
		Image:          &InlineImage{MIMEType: "image/jpeg", Data: "aGVsbG8="},
	})
	if err != nil {
		t.Fatalf("Advice: %v", err)
	}
	if gotReq.SystemInstruction == nil ||
		!strings.Contains(gotReq.SystemInstruction.Parts[0].Text, "installed 1994") {
		t.Fatalf("system instruction = %+v", gotReq.SystemInstruction)
	}
	parts := gotReq.Contents[len(gotReq.Contents)-1].Parts
	last := parts[len(parts)-1]
	if last.InlineData == nil || last.InlineData.Data != "aGVsbG8=" {
		t.Fatalf("image part = %+v", last)
	}
}

func TestAdviceEmptyThread(t *testing.T) {
	t.Parallel()
	c := New("key")
	if _, err := c.Advice(context.Background(), AdviceRequest{}); !errors.Is(err, apperr.ErrMalformedData) {
		t.Fatalf("err = %v, want ErrMalformedData", err)
	}
}

func TestAdviceWithoutKey(t *testing.T) {
	t.Parallel()
	c := New("")
	_, err := c.Advice(context.Background(), AdviceRequest{Thread: []entity.Message{{Role: entity.MessageUser, Text: "hi"}}})
	if !errors.Is(err, apperr.ErrAuth) {
		t.Fatalf("err = %v, want ErrAuth", err)
	}
}

func TestAdviceAuthError(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"code": 403, "message": "key disabled"},
		})
	})

	_, err := c.Advice(context.Background(), AdviceRequest{Thread: []entity.Message{{Role: entity.MessageUser, Text: "hi"}}})
	if !errors.Is(err, apperr.ErrAuth) {
		t.Fatalf("err = %v, want ErrAuth", err)
	}
	var se *apperr.ServiceError
	if !errors.As(err, &se) || se.StatusCode != http.StatusForbidden {
		t.Fatalf("service error = %+v", se)
	}
}

func TestAdviceServerErrorIsRetryable(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.Advice(context.Background(), AdviceRequest{Thread: []entity.Message{{Role: entity.MessageUser, Text: "hi"}}})
	if !errors.Is(err, apperr.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if !apperr.IsRetryable(err) {
		t.Fatal("service outage should be retryable")
	}
}

func TestSummarize(t *testing.T) {
	t.Parallel()
	var gotReq wireRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_ = json.NewEncoder(w).Encode(textResponse("Water heater replacement\nAgreed on a 50-gallon unit. Install booked for Friday."))
	})

	sum, err := c.Summarize(context.Background(), []entity.Message{
		{Role: entity.MessageUser, Text: "Which size should I get?"},
		{Role: entity.MessageExpert, ExpertName: "Bob", Text: "50 gallons for your household."},
		{Role: entity.MessageSystem, Text: "Bob has joined."},
	})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if sum.Title != "Water heater replacement" {
		t.Fatalf("Title = %q", sum.Title)
	}
	if sum.Content == "" || sum.Content == sum.Title {
		t.Fatalf("Content = %q", sum.Content)
	}

	// System notices are excluded from the transcript sent out.
	if len(gotReq.Contents) != 1 {
		t.Fatalf("contents = %+v", gotReq.Contents)
	}
	sent := gotReq.Contents[0].Parts[0].Text
	if !strings.Contains(sent, "Requester: Which size") || !strings.Contains(sent, "Bob: 50 gallons") {
		t.Fatalf("transcript = %q", sent)
	}
	if strings.Contains(sent, "has joined") {
		t.Fatalf("system notice leaked into transcript: %q", sent)
	}
}

func TestSummarizeNothingToSummarize(t *testing.T) {
	t.Parallel()
	c := New("key")
	_, err := c.Summarize(context.Background(), []entity.Message{
		{Role: entity.MessageSystem, Text: "Bob has joined."},
	})
	if !errors.Is(err, apperr.ErrMalformedData) {
		t.Fatalf("err = %v, want ErrMalformedData", err)
	}
}

func TestSplitSummary(t *testing.T) {
	t.Parallel()
	s := splitSummary("# Title line\nBody text")
	if s.Title != "Title line" || s.Content != "Body text" {
		t.Fatalf("got %+v", s)
	}
	s = splitSummary("Only one line")
	if s.Title != "Only one line" || s.Content != "Only one line" {
		t.Fatalf("got %+v", s)
	}
}
