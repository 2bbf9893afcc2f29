package decoder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	commonhttp "breakfear-decoder/internal/common/http"
)

// Client produces the raw JSON object for a prompt.
type Client interface {
	Generate(ctx context.Context, p Prompt) (map[string]interface{}, error)
}

// UpstreamClient calls a hosted decoder endpoint with a bearer token.
type UpstreamClient struct {
	http  *commonhttp.Client
	url   string
	token string
}

func NewUpstreamClient(httpClient *commonhttp.Client, url, token string) *UpstreamClient {
	return &UpstreamClient{http: httpClient, url: url, token: token}
}

func (c *UpstreamClient) Generate(ctx context.Context, p Prompt) (map[string]interface{}, error) {
	payload := map[string]interface{}{
		"question":  p.Request.Question,
		"firstName": p.Request.FirstName,
	}
	if p.Request.Source != "" {
		payload["source"] = p.Request.Source
	}

	headers := map[string]string{}
	if c.token != "" {
		headers["Authorization"] = "Bearer " + c.token
	}

	resp, err := c.http.PostJSON(ctx, c.url, payload, headers)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upstream status %d: %s", resp.StatusCode, string(resp.Body))
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(resp.Body, &raw); err != nil {
		return nil, fmt.Errorf("decode upstream response: %w", err)
	}
	return raw, nil
}
