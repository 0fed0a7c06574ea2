//go:build integration

// Integration test for the API client.
// Requires a running server: go run ./cmd/styled
//
// Run: go test -tags=integration ./pkg/styleclient/
package styleclient_test

import (
	"context"
	"os"
	"testing"

	"github.com/joeblew999/plat-style/pkg/styleclient"
)

func baseURL() string {
	if u := os.Getenv("STYLE_BASE_URL"); u != "" {
		return u
	}
	return "http://localhost:8087"
}

func client() *styleclient.Client {
	return styleclient.New(baseURL())
}

func TestHealth(t *testing.T) {
	_, body, err := client().Health(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if body.Status != "ok" {
		t.Fatalf("status=%q, want ok", body.Status)
	}
}

func TestThemeLifecycle(t *testing.T) {
	c := client()
	ctx := context.Background()

	doc := []byte(`{
		"styles": {"tilezen": [
			{"when": "kind == 'road'", "technique": "solid-line", "lineColor": "#00f"}
		]}
	}`)
	if _, err := c.PutTheme(ctx, "integration-test", doc); err != nil {
		t.Fatal("put:", err)
	}

	_, themes, err := c.ListThemes(ctx)
	if err != nil {
		t.Fatal("list:", err)
	}
	found := false
	for _, th := range themes {
		if th.ID == "integration-test" {
			found = true
		}
	}
	if !found {
		t.Fatal("uploaded theme missing from list")
	}

	_, resp, err := c.Decode(ctx, styleclient.DecodeRequest{
		Theme:    "integration-test",
		StyleSet: "tilezen",
		Zoom:     14,
		Buffer: []byte(`{
			"type": "FeatureCollection",
			"features": [
				{"type": "Feature",
				 "geometry": {"type": "LineString", "coordinates": [[0,0],[1,1]]},
				 "properties": {"kind": "road"}}
			]
		}`),
	})
	if err != nil {
		t.Fatal("decode:", err)
	}
	if len(resp.Features) != 1 {
		t.Fatalf("features=%d, want 1", len(resp.Features))
	}

	if _, err := c.DeleteTheme(ctx, "integration-test"); err != nil {
		t.Fatal("delete:", err)
	}
}

func TestListTiles(t *testing.T) {
	_, _, err := client().ListTiles(context.Background())
	if err != nil {
		t.Fatal(err)
	}
}
