package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDetect(t *testing.T) {
	var req map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"model": "llava",
			"message": map[string]any{
				"role":    "assistant",
				"content": `{"objects":[{"label":"cat","confidence":0.9,"box":{"x":0.2,"y":0.2,"w":0.3,"h":0.3}}],"description":"a cat"}`,
			},
			"done": true,
		})
	}))
	defer server.Close()

	c, err := NewClient(server.URL + "/api/chat")
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	result, err := c.Detect(context.Background(), "llava", "find objects", "aGVsbG8=")
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(result.Objects) != 1 || result.Objects[0].Label != "cat" {
		t.Errorf("Unexpected result %+v", result)
	}
	if req["model"] != "llava" || req["stream"] != false {
		t.Errorf("Unexpected request %v", req)
	}
}

func TestDetectBadImage(t *testing.T) {
	c, _ := NewClient("http://127.0.0.1:1")
	if _, err := c.Detect(context.Background(), "m", "p", "%%%"); err == nil {
		t.Error("Expected error for invalid base64")
	}
}

func TestNewClientInvalidURL(t *testing.T) {
	if _, err := NewClient("localhost"); err == nil {
		t.Error("Expected error for URL without scheme")
	}
}
