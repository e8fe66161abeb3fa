package event

import (
	"testing"
	"time"
)

func TestNewGeneratesEventIDWhenEmpty(t *testing.T) {
	evt, err := New("", "ap.invoice_received", "1.0", Payload{"amount": 100}, "actor-1", "ap-service", time.Now(), time.Now(), "idem-1")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if evt.EventID == "" {
		t.Error("expected a generated event_id")
	}
}

func TestNewPreservesSuppliedEventID(t *testing.T) {
	evt, err := New("fixed-id", "ap.invoice_received", "1.0", Payload{}, "actor-1", "ap-service", time.Now(), time.Now(), "idem-1")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if evt.EventID != "fixed-id" {
		t.Errorf("EventID = %q, want %q", evt.EventID, "fixed-id")
	}
}

func TestNewRejectsMissingRequiredFields(t *testing.T) {
	cases := []struct {
		name           string
		eventType      Type
		actorID        string
		idempotencyKey string
	}{
		{"missing event_type", "", "actor-1", "idem-1"},
		{"missing actor_id", "ap.invoice_received", "", "idem-1"},
		{"missing idempotency_key", "ap.invoice_received", "actor-1", ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := New("", c.eventType, "1.0", Payload{}, c.actorID, "ap-service", time.Now(), time.Now(), c.idempotencyKey)
			if err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestHashPayloadDeterministic(t *testing.T) {
	p1 := Payload{"a": 1, "b": "x"}
	p2 := Payload{"b": "x", "a": 1}
	h1, err := HashPayload(p1)
	if err != nil {
		t.Fatalf("HashPayload: %v", err)
	}
	h2, err := HashPayload(p2)
	if err != nil {
		t.Fatalf("HashPayload: %v", err)
	}
	if h1 != h2 {
		t.Error("structurally equal payloads must hash identically regardless of key order")
	}
}

func TestHashPayloadDiffersOnContentChange(t *testing.T) {
	h1, _ := HashPayload(Payload{"amount": 100})
	h2, _ := HashPayload(Payload{"amount": 200})
	if h1 == h2 {
		t.Error("different payload content must hash differently")
	}
}
