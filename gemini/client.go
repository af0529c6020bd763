// Package gemini provides a very minimal client for the Gemini
// generateContent API, enough for single-turn prompt/response calls.
package gemini

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the Gemini REST endpoint.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// DefaultModel is the model used when none is configured.
const DefaultModel = "gemini-2.0-flash"

// Client holds configuration for interacting with the Gemini API.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Gemini client authenticated with the given API key.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:  apiKey,
		model:   DefaultModel,
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// NewClientWithBaseURL creates a client pointed at a custom endpoint.
// Used by tests to target an httptest server.
func NewClientWithBaseURL(apiKey, baseURL string) *Client {
	c := NewClient(apiKey)
	c.baseURL = strings.TrimSuffix(baseURL, "/")
	return c
}

type generateContentParams struct {
	Contents []*content `json:"contents"`
}

type content struct {
	Parts []*part `json:"parts"`
	Role  string  `json:"role,omitempty"`
}

type part struct {
	Text string `json:"text,omitempty"`
}

type generateContentResponse struct {
	Candidates []*candidate `json:"candidates"`
}

type candidate struct {
	Content *content `json:"content"`
}

// Generate sends a single-turn prompt and returns the model's text response.
func (c *Client) Generate(prompt string) (string, error) {
	params := generateContentParams{
		Contents: []*content{
			{Parts: []*part{{Text: prompt}}},
		},
	}
	data, err := json.Marshal(params)
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, url.QueryEscape(c.apiKey))
	req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("gemini API: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var gcr generateContentResponse
	if err := json.NewDecoder(resp.Body).Decode(&gcr); err != nil {
		return "", fmt.Errorf("gemini API: decoding response: %w", err)
	}
	if len(gcr.Candidates) == 0 || gcr.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini API: empty response")
	}

	var parts []string
	for _, p := range gcr.Candidates[0].Content.Parts {
		if p.Text != "" {
			parts = append(parts, p.Text)
		}
	}
	return strings.Join(parts, "\n"), nil
}

// Sanitize strips markdown emphasis markers from a model response so it can
// be relayed to Chatwork, which renders them literally.
func Sanitize(s string) string {
	s = strings.ReplaceAll(s, "**", "")
	s = strings.ReplaceAll(s, "*", "")
	s = strings.ReplaceAll(s, "__", "")
	return s
}
