package notify

import (
	"testing"
	"time"
)

func TestBroker_PublishToSubscribers(t *testing.T) {
	b := NewBroker(nil)
	ch1, cancel1 := b.Subscribe()
	defer cancel1()
	ch2, cancel2 := b.Subscribe()
	defer cancel2()

	b.Publish(Snapshot{JobID: "j1", Status: "in_progress", ProgressPercentage: 45})

	for i, ch := range []<-chan Snapshot{ch1, ch2} {
		select {
		case s := <-ch:
			if s.JobID != "j1" || s.ProgressPercentage != 45 {
				t.Errorf("subscriber %d got %+v", i, s)
			}
			if s.Timestamp.IsZero() {
				t.Errorf("subscriber %d snapshot missing timestamp", i)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d received nothing", i)
		}
	}
}

func TestBroker_SlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewBroker(nil)
	ch, cancel := b.Subscribe()
	defer cancel()

	// Publish far more than the buffer; Publish must never block and the
	// subscriber must end up with the most recent snapshots.
	for i := 0; i <= 100; i++ {
		b.Publish(Snapshot{JobID: "j1", ProgressPercentage: i})
	}

	var last Snapshot
	for {
		select {
		case s := <-ch:
			last = s
			continue
		default:
		}
		break
	}
	if last.ProgressPercentage != 100 {
		t.Errorf("last buffered progress = %d, want 100", last.ProgressPercentage)
	}
}

func TestBroker_CancelStopsDelivery(t *testing.T) {
	b := NewBroker(nil)
	ch, cancel := b.Subscribe()
	cancel()

	b.Publish(Snapshot{JobID: "j1"})

	if _, open := <-ch; open {
		t.Error("cancelled subscription channel should be closed and drained")
	}
}

func TestBroker_NotifyCritical(t *testing.T) {
	b := NewBroker(nil)

	var got []string
	b.OnCritical(func(s Snapshot, msg string) {
		got = append(got, s.JobID+": "+msg)
	})

	b.NotifyCritical(Snapshot{JobID: "j9"}, "processing timed out")
	if len(got) != 1 || got[0] != "j9: processing timed out" {
		t.Errorf("operator notifications = %v", got)
	}
}
