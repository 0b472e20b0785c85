package bus

import (
	"testing"
	"time"
)

func TestPublishDeliversToMatchingSubscriber(t *testing.T) {
	b := New()
	defer b.Close()

	ch, cancel := b.Subscribe("chunk1")
	defer cancel()

	b.Publish(Signal{Topic: TopicRunRequested, StageID: "chunk1", SourceID: "fetch1"})

	select {
	case sig := <-ch:
		if sig.SourceID != "fetch1" {
			t.Errorf("SourceID = %q, want fetch1", sig.SourceID)
		}
	case <-time.After(time.Second):
		t.Fatal("signal not delivered")
	}
}

func TestPublishSkipsOtherStages(t *testing.T) {
	b := New()
	defer b.Close()

	ch, cancel := b.Subscribe("embed1")
	defer cancel()

	b.Publish(Signal{Topic: TopicRunRequested, StageID: "chunk1"})

	select {
	case sig := <-ch:
		t.Errorf("unexpected delivery to embed1: %+v", sig)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCancelClosesChannel(t *testing.T) {
	b := New()
	defer b.Close()

	ch, cancel := b.Subscribe("x")
	cancel()

	if _, ok := <-ch; ok {
		t.Error("expected closed channel after cancel")
	}

	// Publishing after cancel must not panic
	b.Publish(Signal{Topic: TopicRunRequested, StageID: "x"})
}

func TestFullBufferDropsNotBlocks(t *testing.T) {
	b := New()
	defer b.Close()

	_, cancel := b.Subscribe("slow")
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			b.Publish(Signal{Topic: TopicRunRequested, StageID: "slow"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}

func TestMultipleSubscribersSameStage(t *testing.T) {
	b := New()
	defer b.Close()

	ch1, c1 := b.Subscribe("s")
	defer c1()
	ch2, c2 := b.Subscribe("s")
	defer c2()

	b.Publish(Signal{Topic: TopicRunCompleted, StageID: "s", RunID: "r1"})

	for i, ch := range []<-chan Signal{ch1, ch2} {
		select {
		case sig := <-ch:
			if sig.RunID != "r1" {
				t.Errorf("subscriber %d got RunID %q, want r1", i, sig.RunID)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d missed signal", i)
		}
	}
}
