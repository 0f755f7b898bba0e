package detector

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/jackzampolin/relayout/internal/types"
)

const (
	OpenAIName = "openai"

	openAIDefaultModel = "gpt-4o"
)

// OpenAIConfig holds configuration for the vision model detector.
type OpenAIConfig struct {
	APIKey     string
	Model      string        // "gpt-4o" (default)
	MaxRetries int           // Retry attempts for SDK transport
	Timeout    time.Duration // HTTP timeout
	BaseURL    string        // Optional (tests)
	HTTPClient *http.Client  // Optional (tests)
	Logger     *slog.Logger
}

// OpenAIDetector asks a vision model to locate layout regions and answer
// with the same JSON payload a detection service returns.
type OpenAIDetector struct {
	model  string
	client openai.Client
	logger *slog.Logger
}

// NewOpenAIDetector creates a vision model detector.
func NewOpenAIDetector(cfg OpenAIConfig) *OpenAIDetector {
	if cfg.Model == "" {
		cfg.Model = openAIDefaultModel
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
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIDetector{
		model:  cfg.Model,
		client: openai.NewClient(opts...),
		logger: logger,
	}
}

// Name returns the detector identifier.
func (d *OpenAIDetector) Name() string {
	return OpenAIName
}

// Detect sends the image to the model and parses the boxes it returns.
func (d *OpenAIDetector) Detect(ctx context.Context, image []byte) ([]types.Region, error) {
	info, err := DecodeImageInfo(image)
	if err != nil {
		d.logger.Warn("skipping unreadable image", "error", err)
		return []types.Region{}, nil
	}

	dataURL := "data:" + info.MimeType() + ";base64," + base64.StdEncoding.EncodeToString(image)
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(d.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(detectionPrompt()),
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart("Detect the layout regions on this page."),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
			}),
		},
	}

	resp, err := d.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, mapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices returned", ErrBadResponse)
	}

	payload := extractJSON(resp.Choices[0].Message.Content)
	if payload == "" {
		return nil, fmt.Errorf("%w: no JSON object in model output", ErrBadResponse)
	}
	return ParseResponse([]byte(payload), info.Width, info.Height)
}

func detectionPrompt() string {
	labels := make([]string, len(types.Labels))
	for i, l := range types.Labels {
		labels[i] = string(l)
	}
	return `You are a document layout detector. Find every layout region on the page image.
Answer with a single JSON object and nothing else:
{"detections": [{"label": "<label>", "box": [x0, y0, x1, y1], "confidence": <0-1>}]}
Boxes are normalized to the image size: x0,x1 are fractions of the width, y0,y1 fractions of the height,
with (0,0) at the top-left corner. Use only these labels: ` + strings.Join(labels, ", ") + "."
}

func mapOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.Message != "" {
			return fmt.Errorf("OpenAI detection error (status %d): %s", apiErr.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("OpenAI detection error (status %d)", apiErr.StatusCode)
	}
	return fmt.Errorf("OpenAI detection request failed: %w", err)
}

var _ Detector = (*OpenAIDetector)(nil)
