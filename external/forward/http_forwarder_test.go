package forward

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ferndesk/roomscribe/internal/transcript"
)

func testEvent() transcript.Event {
	return transcript.Event{
		RoomID:          "room-1",
		ParticipantID:   "alice",
		ParticipantName: "Alice",
		Text:            "hello world",
		IsFinal:         true,
		Confidence:      0.9,
		Timestamp:       time.Now(),
	}
}

func TestForward_NoReceivers(t *testing.T) {
	f := NewHTTPForwarder(nil)
	// Must be a silent no-op.
	f.Forward(context.Background(), testEvent())
}

func TestForward_DeliversJSONToEveryReceiver(t *testing.T) {
	var hits atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type: %s", ct)
		}
		var ev transcript.Event
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if ev.RoomID != "room-1" || ev.Text != "hello world" || !ev.IsFinal {
			t.Errorf("unexpected event: %+v", ev)
		}
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	})
	first := httptest.NewServer(handler)
	defer first.Close()
	second := httptest.NewServer(handler)
	defer second.Close()

	f := NewHTTPForwarder([]string{first.URL, second.URL})
	f.Forward(context.Background(), testEvent())

	if got := hits.Load(); got != 2 {
		t.Errorf("receivers hit = %d, want 2", got)
	}
}

func TestForward_FailingReceiverDoesNotBlockOthers(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	var hits atomic.Int32
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer good.Close()

	f := NewHTTPForwarder([]string{bad.URL, good.URL})
	f.Forward(context.Background(), testEvent())

	if got := hits.Load(); got != 1 {
		t.Errorf("good receiver hits = %d, want 1", got)
	}
}
