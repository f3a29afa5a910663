package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"fieldDispatch/business/extraction"
	"fieldDispatch/domain"
	"fieldDispatch/pkg/metrics"
)

var _ extraction.Extractor = (*ExtractionRepository)(nil)

type ExtractionConfig struct {
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// ExtractionRepository calls a chat-completions endpoint with a forced tool
// call so the model must answer with a structured command, never free text.
type ExtractionRepository struct {
	config ExtractionConfig
	client *http.Client
}

func NewExtractionRepository(cfg ExtractionConfig) *ExtractionRepository {
	return &ExtractionRepository{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

const systemPrompt = `You extract structured commands from spoken field-technician transcripts.
Classify the intent as one of: close_ticket, log_parts, request_billing, unknown.
Extract the entities the intent needs (customer, parts, hours) and report your confidence between 0 and 1.
When the transcript is ambiguous or off-topic, use intent unknown with low confidence.`

type chatRequest struct {
	Model      string     `json:"model"`
	Messages   []message  `json:"messages"`
	Tools      []tool     `json:"tools"`
	ToolChoice toolChoice `json:"tool_choice"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type tool struct {
	Type     string   `json:"type"`
	Function function `json:"function"`
}

type function struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type toolChoice struct {
	Type     string `json:"type"`
	Function struct {
		Name string `json:"name"`
	} `json:"function"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			ToolCalls []struct {
				Function struct {
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
}

type extractedPayload struct {
	Intent     string         `json:"intent"`
	Entities   map[string]any `json:"entities"`
	Confidence float64        `json:"confidence"`
}

func commandSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"intent": map[string]any{
				"type": "string",
				"enum": []string{"close_ticket", "log_parts", "request_billing", "unknown"},
			},
			"entities": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"customer": map[string]any{"type": "string"},
					"parts":    map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"hours":    map[string]any{"type": "number"},
				},
			},
			"confidence": map[string]any{
				"type":    "number",
				"minimum": 0,
				"maximum": 1,
			},
		},
		"required": []string{"intent", "entities", "confidence"},
	}
}

func (r *ExtractionRepository) Extract(ctx context.Context, rawText, schemaHint string) (domain.ExtractedCommand, error) {
	if err := ctx.Err(); err != nil {
		return domain.ExtractedCommand{}, fmt.Errorf("context error: %w", err)
	}

	reqBody := chatRequest{
		Model: r.config.Model,
		Messages: []message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: rawText},
		},
		Tools: []tool{{
			Type: "function",
			Function: function{
				Name:        "report_command",
				Description: "Report the extracted command from the transcript",
				Parameters:  commandSchema(),
			},
		}},
	}
	reqBody.ToolChoice.Type = "function"
	reqBody.ToolChoice.Function.Name = "report_command"

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return domain.ExtractedCommand{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.config.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return domain.ExtractedCommand{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.config.APIKey)

	res, err := r.client.Do(req)
	if err != nil {
		// transport failure counts as a capability outage, retryable upstream
		return domain.ExtractedCommand{}, fmt.Errorf("%w: %v", extraction.ErrUnavailable, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return domain.ExtractedCommand{}, fmt.Errorf("%w: reading response: %v", extraction.ErrUnavailable, err)
	}

	if res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= 500 {
		metrics.ExtractionRetries.Inc()
		return domain.ExtractedCommand{}, fmt.Errorf("%w: status %d", extraction.ErrUnavailable, res.StatusCode)
	}
	if res.StatusCode != http.StatusOK {
		return domain.ExtractedCommand{}, fmt.Errorf("extraction endpoint returned status %d: %s", res.StatusCode, string(body))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return domain.ExtractedCommand{}, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if len(parsed.Choices) == 0 || len(parsed.Choices[0].Message.ToolCalls) == 0 {
		// the model answered without calling the tool; treat as unusable
		// output rather than an outage
		return domain.ExtractedCommand{Intent: domain.IntentUnknown}, nil
	}

	var out extractedPayload
	args := parsed.Choices[0].Message.ToolCalls[0].Function.Arguments
	if err := json.Unmarshal([]byte(args), &out); err != nil {
		return domain.ExtractedCommand{Intent: domain.IntentUnknown}, nil
	}

	return domain.ExtractedCommand{
		Intent:     domain.Intent(out.Intent),
		Entities:   out.Entities,
		Confidence: out.Confidence,
	}, nil
}
