package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/ppiankov/txlens/internal/model"
)

func testReport() model.Report {
	return model.Report{
		TxID: "f4184fc596403b9d638783cf57adfe4c75c605f6356fbc91338530e9831e9e16",
		Flow: model.Flow{
			Inputs:       []string{"12cbQLTFMXRnSzktFkuoG3eHoMeFtpTu3S", "1Q2TWHE3GMdB6BZKafqwxXtWAWgFt5Jvm3"},
			Outputs:      []string{"12cbQLTFMXRnSzktFkuoG3eHoMeFtpTu3S"},
			OutputValues: []int64{4_000_000_000},
		},
		Score: model.Score{
			Value:    30,
			Judgment: model.JudgmentVeryPoor,
			Entries: []model.Entry{
				{Rule: model.RuleMultipleInputs, Label: "Multiple inputs", Delta: -20, Rationale: "Inputs are likely owned by the same entity."},
				{Rule: model.RuleAddressReuse, Label: "Address reuse", Delta: -30, Rationale: "An input address receives an output."},
				{Rule: model.RuleChangeSameAddress, Label: "Change to same address", Delta: -20, Rationale: "Change returns to a spending address."},
			},
		},
	}
}

func chatResponse(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		ID:      "chatcmpl-123",
		Object:  "chat.completion",
		Created: 1677652288,
		Model:   "gpt-4o-mini",
		Choices: []openai.ChatCompletionChoice{
			{
				Index:        0,
				Message:      openai.ChatCompletionMessage{Role: "assistant", Content: content},
				FinishReason: "stop",
			},
		},
		Usage: openai.Usage{TotalTokens: 100},
	}
}

func TestOpenAIProvider_Explain_Success(t *testing.T) {
	var gotPrompt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Expected path /chat/completions, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Expected Authorization header Bearer test-key, got %s", r.Header.Get("Authorization"))
		}

		var req openai.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		if len(req.Messages) == 2 {
			gotPrompt = req.Messages[1].Content
		}

		_ = json.NewEncoder(w).Encode(chatResponse("  Your inputs were linked together.  "))
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider(Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Model:   "gpt-4o-mini",
		Timeout: 5,
	})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	report := testReport()
	resp, err := provider.Explain(context.Background(), ExplainRequest{Report: report})
	if err != nil {
		t.Fatalf("Explain failed: %v", err)
	}

	if resp.Text != "Your inputs were linked together." {
		t.Errorf("Unexpected text: %q", resp.Text)
	}
	if resp.TokensUsed != 100 {
		t.Errorf("Unexpected token usage: %d", resp.TokensUsed)
	}

	// Prompt carries the breakdown but no addresses or txid
	if !strings.Contains(gotPrompt, "Address reuse (-30)") {
		t.Errorf("Prompt missing breakdown entry: %s", gotPrompt)
	}
	for _, secret := range append(report.Flow.Inputs, report.TxID) {
		if strings.Contains(gotPrompt, secret) {
			t.Errorf("Prompt leaked %s", secret)
		}
	}
}

func TestOpenAIProvider_Explain_RejectsURLs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(chatResponse("See https://example.com/privacy for more."))
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider(Config{APIKey: "test-key", BaseURL: server.URL, Timeout: 5})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	_, err = provider.Explain(context.Background(), ExplainRequest{Report: testReport()})
	if err == nil || !strings.Contains(err.Error(), "https://example.com/privacy") {
		t.Fatalf("Expected URL rejection, got %v", err)
	}
}

func TestOpenAIProvider_Explain_APIError(t *testing.T) {
	for _, status := range []int{http.StatusInternalServerError, http.StatusTooManyRequests} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error": {"message": "boom", "type": "server_error"}}`))
		}))

		provider, err := NewOpenAIProvider(Config{APIKey: "test-key", BaseURL: server.URL, Timeout: 5})
		if err != nil {
			t.Fatalf("Failed to create provider: %v", err)
		}

		_, err = provider.Explain(context.Background(), ExplainRequest{Report: testReport()})
		if err == nil {
			t.Errorf("Expected error for status %d, got nil", status)
		}
		server.Close()
	}
}

func TestOpenAIProvider_Explain_MalformedJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices": [`))
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider(Config{APIKey: "test-key", BaseURL: server.URL, Timeout: 5})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	_, err = provider.Explain(context.Background(), ExplainRequest{Report: testReport()})
	if err == nil {
		t.Fatal("Expected error for malformed JSON, got nil")
	}
}

func TestOpenAIProvider_Explain_ContextDeadline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(500 * time.Millisecond):
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider(Config{APIKey: "test-key", BaseURL: server.URL, Timeout: 30})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	// The caller's shorter deadline wins over the provider timeout
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = provider.Explain(ctx, ExplainRequest{Report: testReport()})
	if err == nil {
		t.Fatal("Expected timeout error, got nil")
	}
}

func TestNewOpenAIProvider_RequiresKey(t *testing.T) {
	if _, err := NewOpenAIProvider(Config{}); err == nil {
		t.Error("Expected error without API key")
	}
}

func TestNewOllamaProvider(t *testing.T) {
	if _, err := NewOllamaProvider(Config{}); err == nil {
		t.Error("Expected error without model")
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(chatResponse("Local explanation."))
	}))
	defer server.Close()

	provider, err := NewOllamaProvider(Config{Model: "llama3.2", BaseURL: server.URL + "/v1"})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}
	if provider.Name() != "ollama" {
		t.Errorf("Expected name ollama, got %s", provider.Name())
	}

	resp, err := provider.Explain(context.Background(), ExplainRequest{Report: testReport()})
	if err != nil {
		t.Fatalf("Explain failed: %v", err)
	}
	if resp.Text != "Local explanation." || resp.Model != "llama3.2" {
		t.Errorf("Unexpected response: %+v", resp)
	}
}
