// Package styleclient is a small Go client for the plat-style HTTP API.
package styleclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Client talks to a plat-style server.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a client for the server at baseURL, e.g. "http://localhost:8087".
func New(baseURL string) *Client {
	return &Client{baseURL: baseURL, http: http.DefaultClient}
}

// HealthBody mirrors the server's health response.
type HealthBody struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ThemeFile describes one stored theme document.
type ThemeFile struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Size      string   `json:"size"`
	Format    string   `json:"format"`
	StyleSets []string `json:"styleSets"`
}

// StoredTile addresses one tile in the server's tile store.
type StoredTile struct {
	Z    int `json:"z"`
	X    int `json:"x"`
	Y    int `json:"y"`
	Size int `json:"size"`
}

// DecodeRequest asks the server to decode one tile buffer against a theme's
// style set. Either Buffer or a stored-tile address (Z, X, Y) must be set.
type DecodeRequest struct {
	Theme    string  `json:"theme"`
	StyleSet string  `json:"styleSet"`
	Z        int     `json:"z,omitempty"`
	X        int     `json:"x,omitempty"`
	Y        int     `json:"y,omitempty"`
	Zoom     float64 `json:"zoom,omitempty"`
	Buffer   []byte  `json:"buffer,omitempty"`
}

// Technique is one resolved rendering recipe for a feature.
type Technique struct {
	Name        string                 `json:"name"`
	Attrs       map[string]interface{} `json:"attrs,omitempty"`
	RenderOrder float64                `json:"renderOrder"`
	StyleSet    string                 `json:"styleSet,omitempty"`
	Category    string                 `json:"category,omitempty"`
}

// DecodedFeature is one styled feature in a decode response.
type DecodedFeature struct {
	Layer      string                 `json:"layer"`
	Geometry   json.RawMessage        `json:"geometry"`
	Tags       map[string]interface{} `json:"tags,omitempty"`
	Techniques []Technique            `json:"techniques"`
}

// DecodeResponse is the server's answer to a decode request.
type DecodeResponse struct {
	Features        []DecodedFeature `json:"features"`
	LayersSkipped   int              `json:"layersSkipped"`
	FeaturesSkipped int              `json:"featuresSkipped"`
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) (*http.Response, error) {
	var body io.Reader
	contentType := ""
	switch v := in.(type) {
	case nil:
	case []byte:
		body = bytes.NewReader(v)
		contentType = "application/octet-stream"
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, err
	}
	if resp.StatusCode >= 400 {
		return resp, fmt.Errorf("styleclient: %s %s: %s: %s", method, path, resp.Status, data)
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return resp, fmt.Errorf("styleclient: decoding %s response: %w", path, err)
		}
	}
	return resp, nil
}

// Health checks the server.
func (c *Client) Health(ctx context.Context) (*http.Response, *HealthBody, error) {
	var body HealthBody
	resp, err := c.do(ctx, http.MethodGet, "/health", nil, &body)
	return resp, &body, err
}

// ListThemes lists stored themes.
func (c *Client) ListThemes(ctx context.Context) (*http.Response, []ThemeFile, error) {
	var body []ThemeFile
	resp, err := c.do(ctx, http.MethodGet, "/api/v1/themes", nil, &body)
	return resp, body, err
}

// PutTheme uploads a theme document (JSON or YAML) under the given ID.
func (c *Client) PutTheme(ctx context.Context, id string, doc []byte) (*http.Response, error) {
	return c.do(ctx, http.MethodPut, "/api/v1/themes/"+id, doc, nil)
}

// DeleteTheme removes a stored theme.
func (c *Client) DeleteTheme(ctx context.Context, id string) (*http.Response, error) {
	return c.do(ctx, http.MethodDelete, "/api/v1/themes/"+id, nil, nil)
}

// Decode decodes a tile buffer into styled features.
func (c *Client) Decode(ctx context.Context, req DecodeRequest) (*http.Response, *DecodeResponse, error) {
	var body DecodeResponse
	resp, err := c.do(ctx, http.MethodPost, "/api/v1/decode", req, &body)
	return resp, &body, err
}

// ListTiles lists the tiles held by the server's tile store.
func (c *Client) ListTiles(ctx context.Context) (*http.Response, []StoredTile, error) {
	var body []StoredTile
	resp, err := c.do(ctx, http.MethodGet, "/api/v1/tiles", nil, &body)
	return resp, body, err
}
