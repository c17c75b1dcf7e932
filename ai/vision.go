package ai

import (
	"Omni/core"
	"Omni/lib/sl"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const visionEndpoint = "https://vision.googleapis.com/v1/images:annotate"

// Vision detects text in images through the Google Vision REST API.
type Vision struct {
	conf       *core.Config
	log        *slog.Logger
	httpClient *http.Client
}

type visionImage struct {
	Content string `json:"content"`
}

type visionFeature struct {
	Type string `json:"type"`
}

type annotateEntry struct {
	Image    visionImage     `json:"image"`
	Features []visionFeature `json:"features"`
}

type annotateRequest struct {
	Requests []annotateEntry `json:"requests"`
}

type annotateResponse struct {
	Responses []struct {
		TextAnnotations []struct {
			Description string `json:"description"`
		} `json:"textAnnotations"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	} `json:"responses"`
}

func NewVision(conf *core.Config, log *slog.Logger) *Vision {
	return &Vision{
		conf: conf,
		log:  log.With(sl.Module("vision")),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func newAnnotateRequest(image []byte) *annotateRequest {
	return &annotateRequest{
		Requests: []annotateEntry{{
			Image:    visionImage{Content: base64.StdEncoding.EncodeToString(image)},
			Features: []visionFeature{{Type: "TEXT_DETECTION"}},
		}},
	}
}

// DetectText returns the full text found in the image.
func (v *Vision) DetectText(ctx context.Context, image []byte) (string, error) {
	jsonBytes, err := json.Marshal(newAnnotateRequest(image))
	if err != nil {
		return "", fmt.Errorf("marshalling request: %w", err)
	}

	url := fmt.Sprintf("%s?key=%s", visionEndpoint, v.conf.VisionApiKey)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonBytes))
	if err != nil {
		return "", fmt.Errorf("making request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("getting response: %w", err)
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			v.log.Warn("closing response body", sl.Err(err))
		}
	}(resp.Body)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response body: %w", err)
	}

	var annotated annotateResponse
	if err := json.Unmarshal(body, &annotated); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if len(annotated.Responses) == 0 {
		return "", fmt.Errorf("text detection: empty response")
	}

	result := annotated.Responses[0]
	if result.Error != nil {
		return "", fmt.Errorf("text detection: %s", result.Error.Message)
	}
	if len(result.TextAnnotations) == 0 {
		return "", fmt.Errorf("text detection: no text found")
	}

	v.log.Info("text detected", slog.Int("annotations", len(result.TextAnnotations)))
	// the first annotation aggregates the whole detected text
	return result.TextAnnotations[0].Description, nil
}
