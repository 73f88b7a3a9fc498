package llamacpp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestServer(t *testing.T, answer interface{}, status int) (*httptest.Server, *ChatCompletionRequest) {
	t.Helper()
	var got ChatCompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(ChatCompletionResponse{
			Choices: []Choice{{Message: Message{Role: "assistant", Content: answer}}},
		})
	}))
	t.Cleanup(server.Close)
	return server, &got
}

func TestDetect(t *testing.T) {
	answer := "```json\n{\"objects\":[{\"label\":\"dog\",\"confidence\":0.8,\"box\":{\"x\":0.1,\"y\":0.1,\"w\":0.5,\"h\":0.5}}],}\n```"
	server, got := newTestServer(t, answer, http.StatusOK)

	c, _ := NewClient(server.URL + "/")
	result, err := c.Detect(context.Background(), "llava", "find objects", "aGVsbG8=")
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(result.Objects) != 1 || result.Objects[0].Label != "dog" {
		t.Errorf("Unexpected result %+v", result)
	}
	if got.Model != "llava" || got.Stream {
		t.Errorf("Unexpected request %+v", got)
	}
	parts, _ := json.Marshal(got.Messages[0].Content)
	if !strings.Contains(string(parts), "data:image/jpeg;base64,aGVsbG8=") {
		t.Errorf("Expected image data URL in request, got %s", parts)
	}
}

func TestSimpleQueryContentParts(t *testing.T) {
	server, _ := newTestServer(t, []map[string]string{{"type": "text", "text": "a cat"}}, http.StatusOK)

	c, _ := NewClient(server.URL)
	text, err := c.SimpleQuery(context.Background(), "m", "what?", "")
	if err != nil {
		t.Fatalf("SimpleQuery failed: %v", err)
	}
	if text != "a cat" {
		t.Errorf("Expected 'a cat', got %q", text)
	}
}

func TestServerError(t *testing.T) {
	server, _ := newTestServer(t, "", http.StatusInternalServerError)

	c, _ := NewClient(server.URL)
	if _, err := c.Detect(context.Background(), "m", "p", ""); err == nil {
		t.Error("Expected error for server failure")
	}
}
