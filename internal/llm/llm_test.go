package llm

import (
	"context"
	"os"
	"strings"
	"testing"
)

func TestNewClient_NoAPIKey(t *testing.T) {
	_, err := NewClient(context.Background(), Options{APIKey: "   "})
	if err == nil {
		t.Fatal("Expected error when no API key is available")
	}
	if !strings.Contains(err.Error(), "gemini API key is required") {
		t.Errorf("Expected API key error, got: %v", err)
	}
}

func TestNewClient_Defaults(t *testing.T) {
	client, err := NewClient(context.Background(), Options{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if client.ModelName() != DefaultModel {
		t.Errorf("Expected default model, got %s", client.ModelName())
	}
	if client.EmbeddingModel() != DefaultEmbeddingModel || client.dimensions != DefaultEmbeddingDimensions {
		t.Errorf("Expected embedding defaults, got %s/%d", client.EmbeddingModel(), client.dimensions)
	}
}

func TestGenerateText_EmptyPrompt(t *testing.T) {
	client, err := NewClient(context.Background(), Options{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if _, err := client.GenerateText(context.Background(), "", TextGenerationOptions{}); err == nil {
		t.Error("Expected error for empty prompt")
	}
	if _, err := client.Embed(context.Background(), " "); err == nil {
		t.Error("Expected error for empty embedding text")
	}
}

func TestGenerateText_Live(t *testing.T) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		t.Skip("GEMINI_API_KEY not set, skipping integration test")
	}

	client, err := NewClient(context.Background(), Options{APIKey: apiKey})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	text, err := client.GenerateText(context.Background(), `Reply with the JSON object {"ok": true} and nothing else.`, TextGenerationOptions{Temperature: 0.1})
	if err != nil {
		t.Fatalf("GenerateText failed: %v", err)
	}
	var out struct {
		OK bool `json:"ok"`
	}
	if err := DecodeJSONObject(text, &out); err != nil || !out.OK {
		t.Errorf("Expected ok JSON, got %q (%v)", text, err)
	}

	vec, err := client.Embed(context.Background(), "央行宣布降息")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vec) != int(DefaultEmbeddingDimensions) {
		t.Errorf("Expected %d dimensions, got %d", DefaultEmbeddingDimensions, len(vec))
	}
}
