package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient("test-key", "test-model")
	c.baseURL = srv.URL
	return c
}

func TestCompleteConcatenatesTextBlocks(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("missing api key header")
		}
		if r.Header.Get("anthropic-version") != apiVersion {
			t.Errorf("version header = %q", r.Header.Get("anthropic-version"))
		}
		var req MessagesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.System != "be brief" || len(req.Messages) != 1 || req.Messages[0].Content != "hi" {
			t.Errorf("request = %+v", req)
		}
		json.NewEncoder(w).Encode(MessagesResponse{
			Content: []ContentBlock{
				{Type: "text", Text: "hello "},
				{Type: "tool_use"},
				{Type: "text", Text: "world"},
			},
			Usage: &Usage{InputTokens: 10, OutputTokens: 5},
		})
	})

	got, err := c.Complete(context.Background(), "be brief", "hi")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "hello world" {
		t.Fatalf("got %q", got)
	}

	stats := c.GetUsageStats()
	if stats.InputTokens != 10 || stats.OutputTokens != 5 || stats.MessageCalls != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestCreateMessageRetriesOn429(t *testing.T) {
	calls := 0
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(MessagesResponse{
			Content: []ContentBlock{{Type: "text", Text: "ok"}},
		})
	})

	got, err := c.Complete(context.Background(), "", "retry me")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "ok" || calls != 2 {
		t.Fatalf("got %q after %d calls", got, calls)
	}
}

func TestCreateMessageAPIErrorNotRetried(t *testing.T) {
	calls := 0
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(MessagesResponse{
			Error: &APIError{Type: "invalid_request_error", Message: "bad model"},
		})
	})

	if _, err := c.Complete(context.Background(), "", "x"); err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("invalid_request_error retried (%d calls)", calls)
	}
}

func TestCreateMessageRespectsContext(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if _, err := c.Complete(ctx, "", "x"); err == nil {
		t.Fatal("expected error")
	}
}

func TestNoAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	c := NewClient("", "")
	if c.Configured() {
		t.Fatal("client without key reports configured")
	}
	if _, err := c.Complete(context.Background(), "", "x"); err == nil {
		t.Fatal("expected error without key")
	}
}
