package composer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"fieldDispatch/business/pipeline"
	"fieldDispatch/domain"
	"fieldDispatch/pkg/logger"

	"github.com/pobyzaarif/goshortcute"
)

var _ pipeline.Composer = (*ComposerRepository)(nil)

type ComposerConfig struct {
	Endpoint          string
	BasicAuthUsername string
	BasicAuthPassword string
}

// ComposerRepository delivers the rendered reply to the voice-response
// service. Delivery is best effort; the pipeline never rolls back on a
// composer failure.
type ComposerRepository struct {
	composerConfig ComposerConfig
}

func NewComposerRepository(cfg ComposerConfig) *ComposerRepository {
	return &ComposerRepository{
		cfg,
	}
}

type payloadSpeak struct {
	Text  string `json:"text"`
	Style string `json:"style"`
}

func (r ComposerRepository) Speak(ctx context.Context, text string, style domain.ResponseStyle) error {
	if r.composerConfig.Endpoint == "" {
		// no composer configured (e.g. local development); log instead
		logger.Info("composer_stub", "style", style, "text", text)
		return nil
	}

	payload := payloadSpeak{
		Text:  text,
		Style: string(style),
	}

	payloadByte, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal json payload: %w", err)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.composerConfig.Endpoint+"/v1/speak", strings.NewReader(string(payloadByte)))
	if err != nil {
		return err
	}

	buildBasicAuth := goshortcute.StringtoBase64Encode(r.composerConfig.BasicAuthUsername + ":" + r.composerConfig.BasicAuthPassword)
	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("Authorization", "Basic "+buildBasicAuth)

	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode >= 200 && res.StatusCode <= 299 {
		return nil
	}
	bodyBytes, _ := io.ReadAll(res.Body)
	logger.Warn("composer_response", "status", res.StatusCode, "body", string(bodyBytes))

	return fmt.Errorf("composer service return negative response %v", res.StatusCode)
}
