package generator

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fitroom/tryon-engine/internal/config"
)

// GeminiGenerator calls the Gemini generateContent REST endpoint with both
// photos inlined and asks for an IMAGE response.
type GeminiGenerator struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

func NewGeminiGenerator(cfg config.GeminiConfig, timeout time.Duration) *GeminiGenerator {
	return &GeminiGenerator{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		model:   cfg.ImageModel,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig struct {
		ResponseModalities []string `json:"responseModalities"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		FinishReason string `json:"finishReason"`
		Content      struct {
			Parts []struct {
				Text       string `json:"text"`
				InlineData *struct {
					MimeType string `json:"mimeType"`
					Data     string `json:"data"`
				} `json:"inlineData"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

func (g *GeminiGenerator) Generate(ctx context.Context, subjectPath, garmentPath, prompt string) ([]byte, error) {
	subject, err := inlineImage(subjectPath)
	if err != nil {
		return nil, newError(KindTransient, "read subject photo", err)
	}
	garment, err := inlineImage(garmentPath)
	if err != nil {
		return nil, newError(KindTransient, "read garment photo", err)
	}

	reqBody := geminiRequest{
		Contents: []geminiContent{{
			Parts: []geminiPart{
				{Text: "Photo of the person:"},
				{InlineData: subject},
				{Text: "Clothing to try on:"},
				{InlineData: garment},
				{Text: prompt},
			},
		}},
	}
	reqBody.GenerationConfig.ResponseModalities = []string{"TEXT", "IMAGE"}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return nil, newError(KindTransient, "marshal request", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", g.baseURL, g.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, newError(KindTransient, "build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, newError(KindTransient, "generation request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newError(KindTransient, "read response", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to body parsing
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, newError(KindTransient,
			fmt.Sprintf("backend unavailable (status %d)", resp.StatusCode), nil)
	default:
		return nil, newError(KindBlocked,
			"The model refused to process these photos. Please try a different garment photo.",
			fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(respBody), 200)))
	}

	var parsed geminiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, newError(KindMalformed, "unparseable response", err)
	}

	if parsed.PromptFeedback != nil && parsed.PromptFeedback.BlockReason != "" {
		return nil, newError(KindBlocked,
			"Generation was blocked by the safety policy. Please try a different garment photo.",
			fmt.Errorf("block reason: %s", parsed.PromptFeedback.BlockReason))
	}

	for _, cand := range parsed.Candidates {
		if reason := cand.FinishReason; reason != "" && strings.Contains(reason, "SAFETY") {
			return nil, newError(KindBlocked,
				"The model declined to generate this type of clothing. T-shirts, dresses and outerwear work best.",
				fmt.Errorf("finish reason: %s", reason))
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData == nil {
				continue
			}
			img, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil {
				return nil, newError(KindMalformed, "decode image data", err)
			}
			return img, nil
		}
	}

	return nil, newError(KindMalformed, "no image in response", nil)
}

func inlineImage(path string) (*geminiInlineData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &geminiInlineData{
		MimeType: mimeFromExtension(filepath.Ext(path)),
		Data:     base64.StdEncoding.EncodeToString(data),
	}, nil
}

func mimeFromExtension(ext string) string {
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	default:
		return "image/png"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
