package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port string

	// Auth
	APIKey string

	// Paths
	PDFDir       string
	StorageDir   string
	VectorDir    string
	ResourcesDir string

	// PDF rendering
	RenderDPI      int
	MaxPages       int
	RenderPdftoppm bool
	RenderTimeout  time.Duration

	// OCR service
	OCRURL        string
	OCRAPIKey     string
	OCRConfidence float64
	OCRTimeout    time.Duration

	// Chart model service
	ChartModelURL     string
	ChartModelAPIKey  string
	ChartModelTimeout time.Duration

	// Embeddings
	EmbedProvider string // "gemini" | "openai" | "none"
	GeminiAPIKey  string
	OpenAIAPIKey  string

	// Layout / figures
	FigureMinAreaRatio float64
	FigureIoUThreshold float64
	FigureMergeGap     float64
	FigureMinPaths     int

	// Tables
	TableMinRows int
	TableMinCols int

	// Chunking
	TextChunkSize      int
	TextChunkOverlap   int
	MinChunkLength     int
	MaxChunkLength     int
	IncludePageSummary bool

	// Worker pool
	WorkerCount int

	// Run state
	RunTTL time.Duration
}

func Load() Config {
	cfg := Config{
		Port: envOr("PORT", "8091"),

		APIKey: os.Getenv("FINCHUNK_API_KEY"),

		PDFDir:       envOr("PDF_DIR", "data/unstructured"),
		StorageDir:   envOr("STORAGE_DIR", "storage"),
		VectorDir:    envOr("VECTOR_DIR", "storage/vectors"),
		ResourcesDir: envOr("RESOURCES_DIR", "storage/resources"),

		RenderDPI:      envInt("RENDER_DPI", 100),
		MaxPages:       envInt("MAX_PAGES", 0),
		RenderPdftoppm: envBool("RENDER_PDFTOPPM", true),
		RenderTimeout:  envDuration("RENDER_TIMEOUT", 30*time.Second),

		OCRURL:        os.Getenv("OCR_URL"),
		OCRAPIKey:     os.Getenv("OCR_API_KEY"),
		OCRConfidence: envFloat("OCR_CONFIDENCE", 0.40),
		OCRTimeout:    envDuration("OCR_TIMEOUT", 60*time.Second),

		ChartModelURL:     os.Getenv("CHART_MODEL_URL"),
		ChartModelAPIKey:  os.Getenv("CHART_MODEL_API_KEY"),
		ChartModelTimeout: envDuration("CHART_MODEL_TIMEOUT", 60*time.Second),

		EmbedProvider: envOr("EMBED_PROVIDER", "none"),
		GeminiAPIKey:  os.Getenv("GEMINI_API_KEY"),
		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),

		FigureMinAreaRatio: envFloat("FIGURE_MIN_AREA_RATIO", 0.02),
		FigureIoUThreshold: envFloat("FIGURE_IOU_THRESHOLD", 0.3),
		FigureMergeGap:     envFloat("FIGURE_MERGE_GAP", 10.0),
		FigureMinPaths:     envInt("FIGURE_MIN_PATHS", 5),

		TableMinRows: envInt("TABLE_MIN_ROWS", 2),
		TableMinCols: envInt("TABLE_MIN_COLS", 2),

		TextChunkSize:      envInt("TEXT_CHUNK_SIZE", 450),
		TextChunkOverlap:   envInt("TEXT_CHUNK_OVERLAP", 50),
		MinChunkLength:     envInt("MIN_CHUNK_LENGTH", 30),
		MaxChunkLength:     envInt("MAX_CHUNK_LENGTH", 8000),
		IncludePageSummary: envBool("INCLUDE_PAGE_SUMMARY", true),

		WorkerCount: envInt("WORKER_COUNT", 2),

		RunTTL: envDuration("RUN_TTL", 1*time.Hour),
	}

	if cfg.RenderDPI <= 0 {
		cfg.RenderDPI = 100
	}
	if cfg.TextChunkSize <= 0 {
		cfg.TextChunkSize = 450
	}
	if cfg.TextChunkOverlap < 0 || cfg.TextChunkOverlap >= cfg.TextChunkSize {
		cfg.TextChunkOverlap = 50
	}
	if cfg.MinChunkLength <= 0 {
		cfg.MinChunkLength = 30
	}
	if cfg.MaxChunkLength <= cfg.MinChunkLength {
		cfg.MaxChunkLength = 8000
	}
	if cfg.TableMinRows <= 0 {
		cfg.TableMinRows = 2
	}
	if cfg.TableMinCols <= 0 {
		cfg.TableMinCols = 2
	}
	if cfg.FigureIoUThreshold <= 0 || cfg.FigureIoUThreshold > 1 {
		cfg.FigureIoUThreshold = 0.3
	}
	if cfg.FigureMinPaths <= 0 {
		cfg.FigureMinPaths = 5
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 2
	}
	if cfg.RunTTL <= 0 {
		cfg.RunTTL = 1 * time.Hour
	}

	return cfg
}

func (c Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("FINCHUNK_API_KEY is required")
	}
	switch c.EmbedProvider {
	case "none":
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when EMBED_PROVIDER=gemini")
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when EMBED_PROVIDER=openai")
		}
	default:
		return fmt.Errorf("unknown EMBED_PROVIDER: %q", c.EmbedProvider)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
