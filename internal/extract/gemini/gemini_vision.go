package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"loadplan/internal/config"
	"loadplan/internal/extract"
	"loadplan/internal/port"
)

const apiBaseURL = "https://generativelanguage.googleapis.com/v1beta/models"

// Provider implements port.VisionProvider using the Gemini generateContent API.
type Provider struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

// NewProvider creates a Gemini-based vision provider from a provider config.
func NewProvider(cfg *config.VisionProviderConfig) *Provider {
	return newProvider(cfg, "")
}

// NewProviderWithEndpoint creates a provider pointing at a custom API endpoint (for testing).
func NewProviderWithEndpoint(cfg *config.VisionProviderConfig, endpoint string) *Provider {
	return newProvider(cfg, endpoint)
}

func newProvider(cfg *config.VisionProviderConfig, endpoint string) *Provider {
	model := cfg.DefaultModel
	if model == "" {
		model = "gemini-2.0-flash"
	}
	// The default endpoint embeds the model name.
	if endpoint == "" {
		endpoint = fmt.Sprintf("%s/%s:generateContent", apiBaseURL, model)
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &Provider{
		apiKey:   cfg.APIKey,
		model:    model,
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (p *Provider) Name() string {
	return "gemini"
}

func (p *Provider) ExtractPage(ctx context.Context, input port.VisionInput) (*port.VisionOutput, error) {
	prompt := extract.BuildFloorPlanPrompt(input.PageIndex+1, len(input.Image) == 0, input.PageText)

	parts, err := buildParts(input, prompt)
	if err != nil {
		return nil, fmt.Errorf("building request parts: %w", err)
	}

	reqBody := map[string]interface{}{
		"contents": []map[string]interface{}{
			{
				"role":  "user",
				"parts": parts,
			},
		},
		"generationConfig": map[string]interface{}{
			"responseMimeType": "application/json",
			"maxOutputTokens":  16384,
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling gemini API: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		baseErr := fmt.Errorf("gemini API error (status %d): %s", resp.StatusCode, string(respBody))
		if resp.StatusCode == http.StatusTooManyRequests {
			retryAfter := extract.ParseRetryAfterHeader(resp.Header.Get("Retry-After"))
			return nil, extract.NewRateLimitError("gemini", baseErr, retryAfter)
		}
		return nil, baseErr
	}

	return parseResponse(respBody, p.model)
}

// buildParts assembles the request parts. Gemini takes both page rasters and
// whole PDFs as inline_data, so only the mime type differs.
func buildParts(input port.VisionInput, prompt string) ([]map[string]interface{}, error) {
	var mimeType string
	var data []byte

	switch {
	case len(input.Image) > 0:
		mt, err := imageMimeType(input.ImageFormat)
		if err != nil {
			return nil, err
		}
		mimeType = mt
		data = input.Image
	case len(input.PDF) > 0:
		mimeType = "application/pdf"
		data = input.PDF
	default:
		return nil, fmt.Errorf("vision input carries neither image nor document")
	}

	return []map[string]interface{}{
		{
			"inline_data": map[string]interface{}{
				"mime_type": mimeType,
				"data":      base64.StdEncoding.EncodeToString(data),
			},
		},
		{
			"text": prompt,
		},
	}, nil
}

func imageMimeType(format string) (string, error) {
	switch format {
	case "jpeg":
		return "image/jpeg", nil
	case "png":
		return "image/png", nil
	default:
		return "", fmt.Errorf("unsupported image format for vision: %s", format)
	}
}

// apiResponse models the generateContent response.
type apiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
}

func parseResponse(body []byte, model string) (*port.VisionOutput, error) {
	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshaling response: %w", err)
	}

	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("empty response from API")
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == "MAX_TOKENS" {
		return nil, fmt.Errorf("output truncated (finishReason: MAX_TOKENS): response exceeded output token limit")
	}
	if len(candidate.Content.Parts) == 0 {
		return nil, fmt.Errorf("empty response from API")
	}

	fragment, confidence, err := extract.ParseVisionPayload(candidate.Content.Parts[0].Text)
	if err != nil {
		return nil, err
	}

	return &port.VisionOutput{
		Fragment:   fragment,
		Confidence: confidence,
		ModelUsed:  model,
	}, nil
}
