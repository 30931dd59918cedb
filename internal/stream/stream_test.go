package stream

import (
	"testing"
	"time"
)

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestSubscribeGreeting(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	hub := NewHub(Config{Clock: fixedClock(now)})
	sub := hub.Subscribe("session-1")
	defer sub.Close()

	select {
	case envelope := <-sub.C:
		if envelope.Type != TypeConnectionEstablished {
			t.Fatalf("expected connection_established, got %s", envelope.Type)
		}
		if envelope.SessionID != "session-1" {
			t.Fatalf("expected session-1, got %s", envelope.SessionID)
		}
	default:
		t.Fatal("expected greeting queued on subscribe")
	}
}

func TestPublishFansOut(t *testing.T) {
	hub := NewHub(Config{})
	first := hub.Subscribe("session-1")
	second := hub.Subscribe("session-1")
	other := hub.Subscribe("session-2")
	defer first.Close()
	defer second.Close()
	defer other.Close()

	// Drain greetings.
	<-first.C
	<-second.C
	<-other.C

	hub.Publish(Envelope{Type: TypeStreamingAnalysis, SessionID: "session-1"})

	for _, sub := range []*Subscription{first, second} {
		select {
		case envelope := <-sub.C:
			if envelope.Type != TypeStreamingAnalysis {
				t.Fatalf("expected streaming_analysis, got %s", envelope.Type)
			}
		default:
			t.Fatal("expected envelope delivered to session-1 subscriber")
		}
	}
	select {
	case envelope := <-other.C:
		t.Fatalf("expected no delivery to session-2, got %v", envelope)
	default:
	}
}

func TestPublishDropsFullSubscriber(t *testing.T) {
	hub := NewHub(Config{Buffer: 2})
	slow := hub.Subscribe("session-1")
	healthy := hub.Subscribe("session-1")
	<-healthy.C

	// The slow subscriber never drains; its greeting occupies one slot.
	hub.Publish(Envelope{Type: TypeStreamingAnalysis, SessionID: "session-1"})
	hub.Publish(Envelope{Type: TypeStreamingAnalysis, SessionID: "session-1"})
	<-healthy.C
	<-healthy.C

	if hub.SubscriberCount("session-1") != 1 {
		t.Fatalf("expected slow subscriber dropped, got %d subscribers",
			hub.SubscriberCount("session-1"))
	}

	// Dropped channel is closed after its buffered messages drain.
	<-slow.C
	<-slow.C
	if _, ok := <-slow.C; ok {
		t.Fatal("expected dropped subscriber channel closed")
	}

	// Publishing keeps working for the remaining subscriber.
	hub.Publish(Envelope{Type: TypeInterventionAlert, SessionID: "session-1"})
	select {
	case envelope := <-healthy.C:
		if envelope.Type != TypeInterventionAlert {
			t.Fatalf("expected intervention_alert, got %s", envelope.Type)
		}
	default:
		t.Fatal("expected delivery to healthy subscriber after drop")
	}
}

func TestHeartbeatOnIdle(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	current := now
	hub := NewHub(Config{IdleTimeout: 30 * time.Second, Clock: func() time.Time { return current }})
	sub := hub.Subscribe("session-1")
	defer sub.Close()
	<-sub.C

	hub.Heartbeat()
	select {
	case envelope := <-sub.C:
		t.Fatalf("expected no heartbeat before idle timeout, got %v", envelope)
	default:
	}

	current = now.Add(31 * time.Second)
	hub.Heartbeat()
	select {
	case envelope := <-sub.C:
		if envelope.Type != TypeHeartbeat {
			t.Fatalf("expected heartbeat, got %s", envelope.Type)
		}
	default:
		t.Fatal("expected heartbeat after idle timeout")
	}

	// The heartbeat resets the idle clock.
	hub.Heartbeat()
	select {
	case envelope := <-sub.C:
		t.Fatalf("expected idle clock reset, got %v", envelope)
	default:
	}
}

func TestCloseSession(t *testing.T) {
	hub := NewHub(Config{})
	sub := hub.Subscribe("session-1")
	<-sub.C

	hub.CloseSession("session-1")
	if hub.SubscriberCount("session-1") != 0 {
		t.Fatalf("expected no subscribers, got %d", hub.SubscriberCount("session-1"))
	}
	if _, ok := <-sub.C; ok {
		t.Fatal("expected subscriber channel closed")
	}

	// Closing twice and closing a closed subscription are no-ops.
	hub.CloseSession("session-1")
	sub.Close()
}

func TestSubscribeAfterClose(t *testing.T) {
	hub := NewHub(Config{})
	hub.Close()
	sub := hub.Subscribe("session-1")
	if _, ok := <-sub.C; ok {
		t.Fatal("expected closed channel for subscription after hub close")
	}
}
