package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/chordcoord/pkg/provider/llm"
)

func TestConvertMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		role    string
		wantErr bool
	}{
		{role: llm.RoleSystem},
		{role: llm.RoleUser},
		{role: llm.RoleAssistant},
		{role: "tool", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			t.Parallel()
			got, err := convertMessage(llm.Message{Role: tt.role, Content: "hi"})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			set := map[string]bool{
				llm.RoleSystem:    got.OfSystem != nil,
				llm.RoleUser:      got.OfUser != nil,
				llm.RoleAssistant: got.OfAssistant != nil,
			}
			if !set[tt.role] {
				t.Errorf("%s message not converted to its union member", tt.role)
			}
		})
	}
}

func TestBuildParams(t *testing.T) {
	t.Parallel()

	p := &Provider{model: "gpt-4o"}
	params, err := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "be brief",
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: "what is a triad?"}},
		Temperature:  0.9,
		MaxTokens:    200,
	})
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}
	if len(params.Messages) != 2 || params.Messages[0].OfSystem == nil {
		t.Fatalf("messages = %d, want system prompt first", len(params.Messages))
	}
	if params.Temperature.Value != 0.9 {
		t.Errorf("temperature = %v", params.Temperature.Value)
	}
	if params.MaxCompletionTokens.Value != 200 {
		t.Errorf("max tokens = %v", params.MaxCompletionTokens.Value)
	}

	if _, err := p.buildParams(llm.CompletionRequest{}); err == nil {
		t.Error("empty request accepted")
	}
}

func TestComplete_RoundTrip(t *testing.T) {
	t.Parallel()

	var got struct {
		Model       string        `json:"model"`
		Temperature float64       `json:"temperature"`
		Messages    []llm.Message `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"A triad has three notes."}}],
			"usage":{"prompt_tokens":10,"completion_tokens":6,"total_tokens":16}}`)
	}))
	defer srv.Close()

	p, err := New("sk-test", "gpt-4o", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		SystemPrompt: "You are a professor of music theory.",
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: "What is a triad?"}},
		Temperature:  0.9,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "A triad has three notes." || resp.Usage.TotalTokens != 16 {
		t.Errorf("resp = %+v", resp)
	}
	if got.Model != "gpt-4o" || got.Temperature != 0.9 {
		t.Errorf("request model = %q temperature = %v", got.Model, got.Temperature)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != llm.RoleSystem {
		t.Errorf("request messages = %+v", got.Messages)
	}
}

func TestStreamCompletion(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"Root, ", "third, ", "fifth."} {
			fmt.Fprintf(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"gpt-4o\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", part)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	p, err := New("sk-test", "gpt-4o", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ch, err := p.StreamCompletion(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "triad?"}},
	})
	if err != nil {
		t.Fatalf("StreamCompletion: %v", err)
	}
	resp, err := llm.Collect(ch)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if resp.Content != "Root, third, fifth." {
		t.Errorf("content = %q", resp.Content)
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := New("", "gpt-4o"); err == nil {
		t.Error("empty API key accepted")
	}
	if _, err := New("sk-test", ""); err == nil {
		t.Error("empty model accepted")
	}
	if _, err := New("sk-test", "gpt-4o", WithOrganization("org-1"), WithTimeout(0)); err != nil {
		t.Errorf("valid options rejected: %v", err)
	}
	if _, err := New("key", "my-deployment", WithAzure("https://example.openai.azure.com", "")); err != nil {
		t.Errorf("azure options rejected: %v", err)
	}
}
