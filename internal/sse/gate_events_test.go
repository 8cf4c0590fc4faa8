package sse_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"ms-reservations/internal/sse"
)

func TestEmitReachesOnlyMatchingEvent(t *testing.T) {
	emitter := sse.NewGateEventEmitter()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mine := emitter.Subscribe(ctx, "festival-verano-2026")
	other := emitter.Subscribe(ctx, "otro-evento")

	emitter.Emit(sse.GateScan{EventSlug: "festival-verano-2026", Status: "valid", At: time.Now()})

	select {
	case scan := <-mine:
		assert.Equal(t, "valid", scan.Status)
	case <-time.After(time.Second):
		t.Fatal("expected a scan on the subscribed channel")
	}
	select {
	case <-other:
		t.Fatal("scan leaked to another event's subscribers")
	default:
	}
}

func TestSubscriberRemovedOnContextDone(t *testing.T) {
	emitter := sse.NewGateEventEmitter()
	ctx, cancel := context.WithCancel(context.Background())

	ch := emitter.Subscribe(ctx, "festival-verano-2026")
	assert.Equal(t, 1, emitter.ClientCount("festival-verano-2026"))

	cancel()
	for i := 0; i < 50; i++ {
		if emitter.ClientCount("festival-verano-2026") == 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, 0, emitter.ClientCount("festival-verano-2026"))

	_, open := <-ch
	assert.False(t, open)
}

func TestEmitDoesNotBlockOnSlowSubscriber(t *testing.T) {
	emitter := sse.NewGateEventEmitter()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	emitter.Subscribe(ctx, "festival-verano-2026")

	done := make(chan struct{})
	go func() {
		// Well past the channel buffer; a blocking send would hang here.
		for i := 0; i < 100; i++ {
			emitter.Emit(sse.GateScan{EventSlug: "festival-verano-2026", Status: "valid"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a subscriber that stopped draining")
	}
}
