package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8091" {
		t.Errorf("expected default port 8091, got %q", cfg.Port)
	}
	if cfg.TextChunkSize != 450 || cfg.TextChunkOverlap != 50 {
		t.Errorf("unexpected chunk window: %d/%d", cfg.TextChunkSize, cfg.TextChunkOverlap)
	}
	if cfg.MinChunkLength != 30 || cfg.MaxChunkLength != 8000 {
		t.Errorf("unexpected chunk bounds: %d/%d", cfg.MinChunkLength, cfg.MaxChunkLength)
	}
	if cfg.TableMinRows != 2 || cfg.TableMinCols != 2 {
		t.Errorf("unexpected table minimums: %d/%d", cfg.TableMinRows, cfg.TableMinCols)
	}
	if cfg.FigureIoUThreshold != 0.3 {
		t.Errorf("unexpected IoU threshold: %v", cfg.FigureIoUThreshold)
	}
	if cfg.EmbedProvider != "none" {
		t.Errorf("expected default provider none, got %q", cfg.EmbedProvider)
	}
	if cfg.RunTTL != time.Hour {
		t.Errorf("unexpected run TTL: %v", cfg.RunTTL)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("TEXT_CHUNK_SIZE", "300")
	t.Setenv("TEXT_CHUNK_OVERLAP", "40")
	t.Setenv("RENDER_PDFTOPPM", "false")
	t.Setenv("OCR_CONFIDENCE", "0.6")
	t.Setenv("RUN_TTL", "30m")

	cfg := Load()
	if cfg.Port != "9000" {
		t.Errorf("expected port override, got %q", cfg.Port)
	}
	if cfg.TextChunkSize != 300 || cfg.TextChunkOverlap != 40 {
		t.Errorf("expected window override, got %d/%d", cfg.TextChunkSize, cfg.TextChunkOverlap)
	}
	if cfg.RenderPdftoppm {
		t.Error("expected rendering disabled")
	}
	if cfg.OCRConfidence != 0.6 {
		t.Errorf("expected confidence override, got %v", cfg.OCRConfidence)
	}
	if cfg.RunTTL != 30*time.Minute {
		t.Errorf("expected TTL override, got %v", cfg.RunTTL)
	}
}

func TestLoad_InvalidOverlapFallsBack(t *testing.T) {
	t.Setenv("TEXT_CHUNK_SIZE", "100")
	t.Setenv("TEXT_CHUNK_OVERLAP", "100")

	cfg := Load()
	if cfg.TextChunkOverlap != 50 {
		t.Errorf("expected overlap reset when >= size, got %d", cfg.TextChunkOverlap)
	}
}

func TestValidate(t *testing.T) {
	cfg := Load()
	cfg.APIKey = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error without API key")
	}

	cfg.APIKey = "sk-test"
	cfg.EmbedProvider = "none"
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}

	cfg.EmbedProvider = "gemini"
	cfg.GeminiAPIKey = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for gemini without key")
	}
	cfg.GeminiAPIKey = "g-key"
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid gemini config, got %v", err)
	}

	cfg.EmbedProvider = "martian"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown provider")
	}
}
