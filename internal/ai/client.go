// client.go - Raw HTTP client for the Gemini REST API

package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// GeminiClient talks to the generative language REST API directly. The key
// travels as a query parameter, matching the public v1beta surface.
type GeminiClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewGeminiClient creates a client for the given API base, e.g.
// "https://generativelanguage.googleapis.com/v1beta".
func NewGeminiClient(apiKey, baseURL string) *GeminiClient {
	return &GeminiClient{
		apiKey:  apiKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{},
	}
}

// Gemini generateContent request/response structures
type inlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"` // base64
}

type contentPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type content struct {
	Parts []contentPart `json:"parts"`
	Role  string        `json:"role,omitempty"`
}

type generationConfig struct {
	ResponseMIMEType string  `json:"response_mime_type,omitempty"`
	Temperature      float64 `json:"temperature"`
}

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
}

type listModelsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

type apiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// GenerateContent sends one text prompt plus one inline binary part to the
// given model and returns the first candidate's text. Failures come back as
// *APIError so the router can decide whether the next candidate is worth
// trying.
func (g *GeminiClient) GenerateContent(ctx context.Context, model, prompt, mimeType string, data []byte) (string, error) {
	reqBody := generateRequest{
		Contents: []content{{
			Parts: []contentPart{
				{Text: prompt},
				{InlineData: &inlineData{
					MIMEType: mimeType,
					Data:     base64.StdEncoding.EncodeToString(data),
				}},
			},
		}},
		GenerationConfig: &generationConfig{
			ResponseMIMEType: "application/json",
			Temperature:      0.2,
		},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.baseURL, model, g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", classifyCallError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", classifyCallError(err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", g.buildAPIError(resp.StatusCode, respBody)
	}

	var result generateResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", &APIError{
			HTTPStatus: resp.StatusCode,
			Status:     "UNPARSEABLE_RESPONSE",
			Message:    fmt.Sprintf("failed to parse generate response: %v", err),
			Retryable:  false,
		}
	}

	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return "", &APIError{
			HTTPStatus: resp.StatusCode,
			Status:     "EMPTY_RESPONSE",
			Message:    "no candidates in generate response",
			Retryable:  true,
		}
	}

	text := result.Candidates[0].Content.Parts[0].Text
	if strings.TrimSpace(text) == "" {
		return "", &APIError{
			HTTPStatus: resp.StatusCode,
			Status:     "EMPTY_RESPONSE",
			Message:    "empty text in generate response",
			Retryable:  true,
		}
	}

	return text, nil
}

// ListModels fetches the currently enabled model identifiers, with the
// "models/" prefix stripped.
func (g *GeminiClient) ListModels(ctx context.Context) ([]string, error) {
	url := fmt.Sprintf("%s/models?key=%s", g.baseURL, g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, classifyCallError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyCallError(err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, g.buildAPIError(resp.StatusCode, respBody)
	}

	var result listModelsResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse models list: %w", err)
	}

	names := make([]string, 0, len(result.Models))
	for _, m := range result.Models {
		names = append(names, strings.TrimPrefix(m.Name, "models/"))
	}
	return names, nil
}

// buildAPIError decodes the standard error envelope and classifies it
func (g *GeminiClient) buildAPIError(httpStatus int, body []byte) *APIError {
	apiErr := &APIError{
		HTTPStatus: httpStatus,
		Status:     "UNKNOWN",
		Message:    strings.TrimSpace(string(body)),
	}

	var envelope apiErrorResponse
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Status = envelope.Error.Status
		apiErr.Message = envelope.Error.Message
	}

	apiErr.Retryable = isRetryableError(apiErr.Status, apiErr.Message, httpStatus)
	return apiErr
}
