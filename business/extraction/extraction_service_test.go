package extraction

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"fieldDispatch/domain"
)

type scriptedExtractor struct {
	calls   int
	results []func() (domain.ExtractedCommand, error)
}

func (f *scriptedExtractor) Extract(ctx context.Context, rawText, schemaHint string) (domain.ExtractedCommand, error) {
	idx := f.calls
	f.calls++
	if idx >= len(f.results) {
		idx = len(f.results) - 1
	}
	return f.results[idx]()
}

func ok(cmd domain.ExtractedCommand) func() (domain.ExtractedCommand, error) {
	return func() (domain.ExtractedCommand, error) { return cmd, nil }
}

func unavailable() func() (domain.ExtractedCommand, error) {
	return func() (domain.ExtractedCommand, error) {
		return domain.ExtractedCommand{}, fmt.Errorf("capability timeout: %w", ErrUnavailable)
	}
}

func TestExtract_LowConfidenceDowngradesToUnknown(t *testing.T) {
	ext := &scriptedExtractor{results: []func() (domain.ExtractedCommand, error){
		ok(domain.ExtractedCommand{
			Intent:     domain.IntentCloseTicket,
			Entities:   map[string]any{"customer": "Johnson"},
			Confidence: 0.3,
		}),
	}}

	svc := NewService(ext, 0.6, 2)
	svc.retryDelay = 0

	cmd, err := svc.Extract(context.Background(), "uh close the johnson thing maybe", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd.Intent != domain.IntentUnknown {
		t.Errorf("intent = %s, want unknown", cmd.Intent)
	}
	if cmd.Confidence != 0.3 {
		t.Errorf("confidence = %v, want preserved 0.3", cmd.Confidence)
	}
}

func TestExtract_MissingRequiredEntityDowngrades(t *testing.T) {
	cases := []domain.ExtractedCommand{
		{Intent: domain.IntentCloseTicket, Entities: map[string]any{}, Confidence: 0.95},
		{Intent: domain.IntentLogParts, Entities: map[string]any{"parts": []any{}}, Confidence: 0.95},
		{Intent: domain.IntentRequestBilling, Entities: map[string]any{}, Confidence: 0.95},
		{Intent: domain.Intent("open_portal"), Entities: map[string]any{}, Confidence: 0.99},
	}

	for _, in := range cases {
		ext := &scriptedExtractor{results: []func() (domain.ExtractedCommand, error){ok(in)}}
		svc := NewService(ext, 0.6, 0)

		cmd, err := svc.Extract(context.Background(), "text", "")
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", in.Intent, err)
		}
		if cmd.Intent != domain.IntentUnknown {
			t.Errorf("%s: intent = %s, want unknown", in.Intent, cmd.Intent)
		}
	}
}

func TestExtract_ValidCommandPassesThrough(t *testing.T) {
	ext := &scriptedExtractor{results: []func() (domain.ExtractedCommand, error){
		ok(domain.ExtractedCommand{
			Intent:     domain.IntentRequestBilling,
			Entities:   map[string]any{"hours": float64(2)},
			Confidence: 0.85,
		}),
	}}

	svc := NewService(ext, 0.6, 0)
	cmd, err := svc.Extract(context.Background(), "bill two hours on johnson", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd.Intent != domain.IntentRequestBilling {
		t.Errorf("intent = %s", cmd.Intent)
	}
	if h, okh := cmd.Hours(); !okh || h != 2 {
		t.Errorf("hours = %v (%v)", h, okh)
	}
}

func TestExtract_RetriesBoundedOnUnavailability(t *testing.T) {
	ext := &scriptedExtractor{results: []func() (domain.ExtractedCommand, error){
		unavailable(),
		unavailable(),
		ok(domain.ExtractedCommand{
			Intent:     domain.IntentLogParts,
			Entities:   map[string]any{"parts": []any{"belt"}},
			Confidence: 0.9,
		}),
	}}

	svc := NewService(ext, 0.6, 2)
	svc.retryDelay = 0

	cmd, err := svc.Extract(context.Background(), "used a belt", "")
	if err != nil {
		t.Fatalf("unexpected error after retries: %v", err)
	}
	if cmd.Intent != domain.IntentLogParts {
		t.Errorf("intent = %s", cmd.Intent)
	}
	if ext.calls != 3 {
		t.Errorf("calls = %d, want 3", ext.calls)
	}
}

func TestExtract_ExhaustedRetriesSurfaceUnavailable(t *testing.T) {
	ext := &scriptedExtractor{results: []func() (domain.ExtractedCommand, error){unavailable()}}

	svc := NewService(ext, 0.6, 1)
	svc.retryDelay = 0

	_, err := svc.Extract(context.Background(), "anything", "")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("error = %v, want ErrUnavailable", err)
	}
	if ext.calls != 2 {
		t.Errorf("calls = %d, want 2", ext.calls)
	}
}
