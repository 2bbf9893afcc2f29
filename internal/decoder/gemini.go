package decoder

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiClient calls the Gemini API with a JSON response schema.
type GeminiClient struct {
	client      *genai.Client
	model       string
	temperature *float32
}

func NewGeminiClient(ctx context.Context, apiKey, model string, temperature float64) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	c := &GeminiClient{client: client, model: model}
	if temperature > 0 {
		c.temperature = genai.Ptr(float32(temperature))
	}
	return c, nil
}

func (c *GeminiClient) Generate(ctx context.Context, p Prompt) (map[string]interface{}, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(p.SystemInstruction, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    responseSchema(p),
		Temperature:       c.temperature,
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(p.Contents), config)
	if err != nil {
		return nil, err
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return nil, fmt.Errorf("empty response from %s", c.model)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("parse model output: %w", err)
	}
	return raw, nil
}

const harmlessOnly = "Only present if isHarmful is false."

func responseSchema(p Prompt) *genai.Schema {
	props := map[string]*genai.Schema{
		"isHarmful": {
			Type:        genai.TypeBoolean,
			Description: "True if the question contains harmful content, otherwise false.",
		},
	}
	for _, f := range p.Fields {
		desc := f.Description
		if !strings.HasSuffix(strings.TrimSpace(desc), harmlessOnly) {
			desc = strings.TrimSpace(desc + " " + harmlessOnly)
		}
		props[f.Name] = &genai.Schema{Type: genai.TypeString, Description: desc}
	}
	return &genai.Schema{
		Type:       genai.TypeObject,
		Properties: props,
		Required:   []string{"isHarmful"},
	}
}
