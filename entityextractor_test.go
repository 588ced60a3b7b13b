package entityextractor

import (
	"context"
	"errors"
	"testing"

	"github.com/menta2k/entity-extractor/pkg/client"
	"github.com/menta2k/entity-extractor/pkg/extraction"
	"github.com/menta2k/entity-extractor/pkg/types"
)

type stubClient struct {
	opts client.Options
}

func (s *stubClient) Name() string { return "stub" }

func (s *stubClient) Complete(ctx context.Context, opts client.Options, prompt string, img types.ImageRef) (string, error) {
	s.opts = opts
	return `{"entities": [], "summary": {"total_entities": 0}}`, nil
}

func TestNewClientRequiresKeyForOpenAI(t *testing.T) {
	cfg := DefaultConfig()
	_, err := NewClient(cfg)
	if !errors.Is(err, extraction.ErrMissingCredential) {
		t.Fatalf("Expected ErrMissingCredential, got %v", err)
	}

	cfg.APIKey = "sk-test"
	c, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if c.Name() != "openai" {
		t.Errorf("Expected openai client, got %s", c.Name())
	}
}

func TestNewClientOllamaNeedsNoKey(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = BackendOllama
	c, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if c.Name() != "ollama" {
		t.Errorf("Expected ollama client, got %s", c.Name())
	}
	if RequiresCredential(BackendOllama) || !RequiresCredential(BackendOpenAI) {
		t.Error("RequiresCredential reported wrong result")
	}
}

func TestNewClientUnknownBackend(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = "llamafile"
	if _, err := NewClient(cfg); err == nil {
		t.Error("Expected error for unknown backend")
	}
}

func TestNewWithClientPassesOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Model = "gpt-4o-mini"
	cfg.MaxTokens = 512
	stub := &stubClient{}

	ex := NewWithClient(stub, cfg, nil)
	if ex.Model() != "gpt-4o-mini" {
		t.Errorf("Expected model gpt-4o-mini, got %s", ex.Model())
	}

	result := ex.ExtractFromURL(context.Background(), "https://example.com/a.jpg")
	if !result.Success {
		t.Fatalf("Expected success, got %q", result.Error)
	}
	if stub.opts.MaxTokens != 512 || stub.opts.Detail != "high" || stub.opts.Temperature != 0.1 {
		t.Errorf("unexpected options %+v", stub.opts)
	}
}

func TestListSupportedModels(t *testing.T) {
	list := ListSupportedModels("gpt-4.1")
	if list.CurrentModel != "gpt-4.1" {
		t.Errorf("Expected current model gpt-4.1, got %s", list.CurrentModel)
	}
	want := []string{"gpt-4o", "gpt-4o-mini", "gpt-4-turbo", "gpt-4-vision-preview"}
	if len(list.AvailableModels) != len(want) {
		t.Fatalf("Expected %d models, got %v", len(want), list.AvailableModels)
	}
	for i, m := range want {
		if list.AvailableModels[i] != m {
			t.Errorf("model %d: expected %s, got %s", i, m, list.AvailableModels[i])
		}
	}

	list.AvailableModels[0] = "mutated"
	if ListSupportedModels("x").AvailableModels[0] != "gpt-4o" {
		t.Error("ListSupportedModels must return a copy")
	}
}
