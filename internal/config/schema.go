package config

// Config holds examscan configuration.
type Config struct {
	Server   ServerCfg   `mapstructure:"server" yaml:"server"`
	OCR      OCRCfg      `mapstructure:"ocr" yaml:"ocr"`
	Pipeline PipelineCfg `mapstructure:"pipeline" yaml:"pipeline"`
	Ingest   IngestCfg   `mapstructure:"ingest" yaml:"ingest"`
	Layout   LayoutCfg   `mapstructure:"layout" yaml:"layout"`
}

// ServerCfg configures the HTTP API.
type ServerCfg struct {
	Addr string `mapstructure:"addr" yaml:"addr"` // bind address, e.g. ":8080"
}

// OCRCfg configures the recognition engines.
type OCRCfg struct {
	Tesseract TesseractCfg `mapstructure:"tesseract" yaml:"tesseract"`
	Vision    VisionCfg    `mapstructure:"vision" yaml:"vision"`
}

// TesseractCfg configures the local Tesseract engine.
type TesseractCfg struct {
	Enabled   bool     `mapstructure:"enabled" yaml:"enabled"`
	Languages []string `mapstructure:"languages" yaml:"languages"`
}

// VisionCfg configures the multimodal vision engine.
type VisionCfg struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Model   string `mapstructure:"model" yaml:"model"`
	APIKey  string `mapstructure:"api_key" yaml:"api_key"` // supports ${ENV_VAR} syntax
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
}

// PipelineCfg configures document processing concurrency.
type PipelineCfg struct {
	Workers           int `mapstructure:"workers" yaml:"workers"`
	QueueSize         int `mapstructure:"queue_size" yaml:"queue_size"`
	StepBudgetMinutes int `mapstructure:"step_budget_minutes" yaml:"step_budget_minutes"`
}

// IngestCfg bounds upload intake.
type IngestCfg struct {
	MaxFileMB    int `mapstructure:"max_file_mb" yaml:"max_file_mb"`
	MaxPages     int `mapstructure:"max_pages" yaml:"max_pages"`
	RenderDPI    int `mapstructure:"render_dpi" yaml:"render_dpi"`
	DetectionDPI int `mapstructure:"detection_dpi" yaml:"detection_dpi"`
}

// LayoutCfg tunes column detection.
type LayoutCfg struct {
	MinColumnGap    int `mapstructure:"min_column_gap" yaml:"min_column_gap"`
	SignificanceGap int `mapstructure:"significance_gap" yaml:"significance_gap"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerCfg{
			Addr: ":8080",
		},
		OCR: OCRCfg{
			Tesseract: TesseractCfg{
				Enabled:   true,
				Languages: []string{"eng"},
			},
			Vision: VisionCfg{
				Enabled: false,
				Model:   "gpt-4o-mini",
				APIKey:  "${OPENAI_API_KEY}",
			},
		},
		Pipeline: PipelineCfg{
			Workers:           2,
			QueueSize:         32,
			StepBudgetMinutes: 5,
		},
		Ingest: IngestCfg{
			MaxFileMB:    100,
			MaxPages:     200,
			RenderDPI:    300,
			DetectionDPI: 150,
		},
		Layout: LayoutCfg{
			MinColumnGap:    80,
			SignificanceGap: 120,
		},
	}
}
