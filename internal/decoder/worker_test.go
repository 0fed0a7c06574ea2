package decoder

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/joeblew999/plat-style/internal/style"
	"github.com/joeblew999/plat-style/internal/theme"
)

// mapSource serves decoders from a fixed map, standing in for the theme
// service.
type mapSource map[string]*Decoder

func (m mapSource) Decoder(styleSet string) (*Decoder, error) {
	d, ok := m[styleSet]
	if !ok {
		return nil, fmt.Errorf("unknown style set %q", styleSet)
	}
	return d, nil
}

func newTestSource(t *testing.T) mapSource {
	t.Helper()
	th, err := theme.Parse([]byte(roadsThemeDoc), ".json")
	if err != nil {
		t.Fatal(err)
	}
	ev, err := style.Compile("tilezen", th)
	if err != nil {
		t.Fatal(err)
	}
	return mapSource{"tilezen": New(ev)}
}

func TestPoolDecode(t *testing.T) {
	p := NewPool(newTestSource(t), 2)
	defer p.Close()

	resp, err := p.Decode(context.Background(), Request{
		Buffer:   roadsTile(t),
		StyleSet: "tilezen",
		Zoom:     14,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Features) != 2 {
		t.Fatalf("features = %d, want 2", len(resp.Features))
	}
}

func TestPoolConcurrentDecodes(t *testing.T) {
	p := NewPool(newTestSource(t), 4)
	defer p.Close()

	buf := roadsTile(t)
	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := p.Decode(context.Background(), Request{
				Buffer: buf, StyleSet: "tilezen", Zoom: 14,
			})
			if err != nil {
				errs <- err
				return
			}
			if len(resp.Features) != 2 {
				errs <- fmt.Errorf("features = %d", len(resp.Features))
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestPoolWorkerSurvivesErrors(t *testing.T) {
	// A single worker must keep serving after failed decodes.
	p := NewPool(newTestSource(t), 1)
	defer p.Close()

	if _, err := p.Decode(context.Background(), Request{
		Buffer: []byte("garbage"), StyleSet: "tilezen", Zoom: 14,
	}); err == nil {
		t.Fatal("garbage buffer decoded")
	}
	if _, err := p.Decode(context.Background(), Request{
		Buffer: roadsTile(t), StyleSet: "nope", Zoom: 14,
	}); err == nil {
		t.Fatal("unknown style set decoded")
	}

	resp, err := p.Decode(context.Background(), Request{
		Buffer: roadsTile(t), StyleSet: "tilezen", Zoom: 14,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Features) != 2 {
		t.Fatalf("features after errors = %d, want 2", len(resp.Features))
	}
}

func TestPoolCancelledRequest(t *testing.T) {
	p := NewPool(newTestSource(t), 1)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Decode(ctx, Request{
		Buffer: roadsTile(t), StyleSet: "tilezen", Zoom: 14,
	}); err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}

	// The worker stays usable for the next caller.
	if _, err := p.Decode(context.Background(), Request{
		Buffer: roadsTile(t), StyleSet: "tilezen", Zoom: 14,
	}); err != nil {
		t.Fatal(err)
	}
}

func TestPoolCloseDuringDecodes(t *testing.T) {
	// Closing while callers are submitting must never panic on the jobs
	// channel: submissions either complete or get the closed-pool error.
	p := NewPool(newTestSource(t), 2)
	buf := roadsTile(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_, err := p.Decode(context.Background(), Request{
					Buffer: buf, StyleSet: "tilezen", Zoom: 14,
				})
				if err != nil {
					return // pool closed underneath us
				}
			}
		}()
	}
	p.Close()
	wg.Wait()
}

func TestPoolClose(t *testing.T) {
	p := NewPool(newTestSource(t), 2)
	p.Close()
	p.Close() // idempotent

	if _, err := p.Decode(context.Background(), Request{
		Buffer: roadsTile(t), StyleSet: "tilezen", Zoom: 14,
	}); err == nil {
		t.Fatal("closed pool accepted a request")
	}
}
