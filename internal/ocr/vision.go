package ocr

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	VisionName          = "vision"
	visionDefaultModel  = openai.ChatModelGPT4o
	visionDefaultPrompt = "Extract all text from this scanned exam page. Respond with JSON only: " +
		`{"text": "<full extracted text, preserving line breaks>", ` +
		`"words": [{"text": "<word>", "confidence": <0-100 integer>}]}. ` +
		"Confidence reflects how certain you are of each word."
)

// visionResultSchema constrains the model's structured output. Responses
// failing validation are treated as engine failures, not silently coerced.
const visionResultSchema = `{
	"type": "object",
	"required": ["text"],
	"properties": {
		"text": {"type": "string"},
		"words": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["text", "confidence"],
				"properties": {
					"text": {"type": "string"},
					"confidence": {"type": "number", "minimum": 0, "maximum": 100}
				}
			}
		}
	}
}`

// VisionConfig holds configuration for the vision-LLM OCR engine.
type VisionConfig struct {
	APIKey      string
	Model       string
	Prompt      string
	MaxRetries  int
	Timeout     time.Duration
	BaseURL     string       // Optional (tests)
	HTTPClient  *http.Client // Optional (tests)
	Temperature float64
}

// Vision is an Engine backed by a multimodal chat model through the OpenAI
// API. It complements Tesseract on low-quality scans where classical OCR
// degrades, at higher latency and cost.
type Vision struct {
	model       string
	prompt      string
	maxRetries  int
	temperature float64
	client      openai.Client
	schema      *jsonschema.Schema
}

// NewVision creates the vision engine.
func NewVision(cfg VisionConfig) (*Vision, error) {
	if cfg.Model == "" {
		cfg.Model = visionDefaultModel
	}
	if cfg.Prompt == "" {
		cfg.Prompt = visionDefaultPrompt
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("vision_result.json", strings.NewReader(visionResultSchema)); err != nil {
		return nil, fmt.Errorf("add result schema: %w", err)
	}
	schema, err := compiler.Compile("vision_result.json")
	if err != nil {
		return nil, fmt.Errorf("compile result schema: %w", err)
	}

	return &Vision{
		model:       cfg.Model,
		prompt:      cfg.Prompt,
		maxRetries:  cfg.MaxRetries,
		temperature: cfg.Temperature,
		client:      openai.NewClient(opts...),
		schema:      schema,
	}, nil
}

// Name returns the engine identifier.
func (v *Vision) Name() string { return VisionName }

// Recognize sends the page image to the chat model and parses its
// structured JSON reply. Transient transport failures are retried with
// exponential backoff.
func (v *Vision) Recognize(ctx context.Context, in Input) (*Result, error) {
	start := time.Now()
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(in.Image)

	var content string
	err := retry.Do(
		func() error {
			resp, err := v.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
				Model: v.model,
				Messages: []openai.ChatCompletionMessageParamUnion{
					openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
						openai.TextContentPart(v.prompt),
						openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
					}),
				},
				Temperature: openai.Float(v.temperature),
			})
			if err != nil {
				return err
			}
			if len(resp.Choices) == 0 {
				return fmt.Errorf("empty completion response")
			}
			content = resp.Choices[0].Message.Content
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(v.maxRetries)),
		retry.Delay(time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("vision completion: %w", err)
	}

	parsed, err := v.parseReply(content)
	if err != nil {
		return nil, err
	}

	words := make([]Word, 0, len(parsed.Words))
	for _, w := range parsed.Words {
		words = append(words, Word{Text: w.Text, Confidence: w.Confidence})
	}
	filtered, avg := FilterWords(words, MinWordConfidence)
	if len(filtered) == 0 && parsed.Text != "" {
		// Model returned text without word detail; score conservatively
		// rather than claiming full confidence.
		avg = 75
	}

	return &Result{
		Text:              strings.TrimSpace(parsed.Text),
		Confidence:        avg,
		EngineID:          VisionName,
		ProcessingSeconds: time.Since(start).Seconds(),
		Words:             filtered,
		Preprocessing:     in.Preprocessing,
	}, nil
}

type visionReply struct {
	Text  string `json:"text"`
	Words []struct {
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
	} `json:"words"`
}

// parseReply extracts and validates the model's JSON payload. Models
// occasionally wrap JSON in markdown fences; strip them before parsing.
func (v *Vision) parseReply(content string) (*visionReply, error) {
	raw := strings.TrimSpace(content)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSuffix(strings.TrimSpace(raw), "```")
	}

	var generic any
	if err := json.Unmarshal([]byte(raw), &generic); err != nil {
		return nil, fmt.Errorf("vision reply is not JSON: %w", err)
	}
	if err := v.schema.Validate(generic); err != nil {
		return nil, fmt.Errorf("vision reply failed schema validation: %w", err)
	}

	var reply visionReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return nil, fmt.Errorf("decode vision reply: %w", err)
	}
	return &reply, nil
}
