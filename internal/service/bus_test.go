package service

import "testing"

func TestEventBusFanOut(t *testing.T) {
	b := NewEventBus()
	a := b.Subscribe()
	c := b.Subscribe()

	b.Publish(Event{Resource: ResourceThemes, Action: ActionUpdated, ID: "day"})

	for _, ch := range []chan Event{a, c} {
		e := <-ch
		if e.Resource != ResourceThemes || e.Action != ActionUpdated || e.ID != "day" {
			t.Fatalf("event = %+v", e)
		}
	}

	b.Unsubscribe(a)
	b.Publish(Event{Resource: ResourceTiles, Action: ActionCreated, ID: "1/2/3"})
	if e := <-c; e.ID != "1/2/3" {
		t.Fatalf("event after unsubscribe = %+v", e)
	}
	if _, open := <-a; open {
		t.Fatal("unsubscribed channel still open")
	}
}

func TestEventBusSlowSubscriber(t *testing.T) {
	b := NewEventBus()
	ch := b.Subscribe()

	// Overfill the subscriber buffer; Publish must not block.
	for i := 0; i < 40; i++ {
		b.Publish(Event{Resource: ResourceThemes, Action: ActionUpdated, ID: "x"})
	}
	if len(ch) != cap(ch) {
		t.Fatalf("buffered = %d, want %d", len(ch), cap(ch))
	}
}
