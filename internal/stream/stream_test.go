package stream

import (
	"context"
	"testing"
	"time"
)

func TestPublishReachesOwnTeamOnly(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chA := s.Subscribe(ctx, "team-a")
	chB := s.Subscribe(ctx, "team-b")

	s.Publish(Activity{TeamID: "team-a", Kind: "event.created", Title: "x", Timestamp: time.Now()})

	select {
	case act := <-chA:
		if act.TeamID != "team-a" {
			t.Fatalf("unexpected activity: %+v", act)
		}
	case <-time.After(time.Second):
		t.Fatal("team-a subscriber received nothing")
	}

	select {
	case act := <-chB:
		t.Fatalf("team-b must not receive team-a activity: %+v", act)
	default:
	}
}

func TestSubscribeClosesOnContextEnd(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	ch := s.Subscribe(ctx, "team-a")
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
	if s.Subscribers() != 0 {
		t.Fatalf("expected 0 subscribers, got %d", s.Subscribers())
	}
}

func TestPublishSkipsSlowSubscriber(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Subscribe(ctx, "team-a")
	// Fill the buffer past capacity; Publish must never block.
	for i := 0; i < 64; i++ {
		s.Publish(Activity{TeamID: "team-a", Kind: "event.created"})
	}
}
