package hub

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/fight5566jay/Explainable-Mortal/internal/model"
)

func quietHub() *Hub {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestHubBroadcast(t *testing.T) {
	h := quietHub()

	sub1 := h.Subscribe()
	sub2 := h.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Start(ctx)

	h.Notify(model.Event{Kind: model.KindGenerated, Report: "/out/a.html"})

	// Both subscribers should receive it.
	for i, sub := range []<-chan model.Event{sub1, sub2} {
		select {
		case ev := <-sub:
			if ev.Report != "/out/a.html" {
				t.Errorf("sub%d: expected /out/a.html, got %s", i+1, ev.Report)
			}
		case <-time.After(1 * time.Second):
			t.Fatalf("sub%d: timed out", i+1)
		}
	}
}

func TestHubSlowConsumer(t *testing.T) {
	h := quietHub()

	// Subscribe but never read: simulates a slow consumer.
	_ = h.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Start(ctx)

	// Fill beyond the subscriber buffer.
	for i := 0; i < subscriberBuffer+100; i++ {
		h.Notify(model.Event{Kind: model.KindProgress, Index: i})
	}

	deadline := time.Now().Add(2 * time.Second)
	for h.Dropped() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if h.Dropped() == 0 {
		t.Error("expected dropped events for slow consumer, got 0")
	}
}

func TestHubUnsubscribe(t *testing.T) {
	h := quietHub()
	sub := h.Subscribe()

	h.Unsubscribe(sub)

	if h.Subscribers() != 0 {
		t.Errorf("expected no subscribers, got %d", h.Subscribers())
	}
	if _, ok := <-sub; ok {
		t.Error("expected channel to be closed")
	}
}

func TestHubNotifyAfterStop(t *testing.T) {
	h := quietHub()
	sub := h.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.Start(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	if _, ok := <-sub; ok {
		t.Error("expected subscriber channel closed on stop")
	}

	// Notify must not block once the hub is gone, even past the input buffer.
	finished := make(chan struct{})
	go func() {
		for i := 0; i < inputBuffer+10; i++ {
			h.Notify(model.Event{Kind: model.KindProgress})
		}
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked after hub stopped")
	}
}
