package generator

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"
)

// GenAIConfig configures the Gemini image adapter.
type GenAIConfig struct {
	APIKey string
	Model  string
	// BaseURL overrides the API endpoint; used for proxies and tests.
	BaseURL string
	Timeout time.Duration
}

// GenAI requests icons from a Gemini image model.
type GenAI struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGenAI creates the client. It does not contact the service.
func NewGenAI(ctx context.Context, cfg GenAIConfig) (*GenAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("generator: genai api key required")
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-2.5-flash-image"
	}
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("generator: genai client: %w", err)
	}
	return &GenAI{client: client, model: model, timeout: cfg.Timeout}, nil
}

// Generate sends the prompt and converts the response at the boundary.
func (g *GenAI) Generate(ctx context.Context, req Request) Result {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	contents := []*genai.Content{
		genai.NewContentFromText(req.Prompt, genai.RoleUser),
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return Failure(fmt.Errorf("generator: genai generate %q: %w", req.ItemID, err))
	}
	return FromResponse(resp)
}

// FromResponse takes the first inline image part of the first candidate.
// Responses without one (text only, safety blocks, no candidates) are Empty.
func FromResponse(resp *genai.GenerateContentResponse) Result {
	if resp == nil || len(resp.Candidates) == 0 {
		return Empty()
	}
	candidate := resp.Candidates[0]
	if candidate == nil || candidate.Content == nil {
		return Empty()
	}
	for _, part := range candidate.Content.Parts {
		if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
			continue
		}
		return Success(DataURI(part.InlineData.MIMEType, part.InlineData.Data))
	}
	return Empty()
}

// DataURI encodes an image as a base64 data URI. Missing or non-image MIME
// types fall back to PNG.
func DataURI(mimeType string, data []byte) string {
	if !strings.HasPrefix(mimeType, "image/") {
		mimeType = "image/png"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURI reverses DataURI.
func DecodeDataURI(uri string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, errors.New("generator: not a data uri")
	}
	meta, encoded, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, errors.New("generator: data uri without payload")
	}
	mimeType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return "", nil, errors.New("generator: data uri is not base64")
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", nil, fmt.Errorf("generator: decode data uri: %w", err)
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return mimeType, data, nil
}
