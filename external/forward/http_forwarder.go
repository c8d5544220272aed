package forward

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ferndesk/roomscribe/internal/forward"
	"github.com/ferndesk/roomscribe/internal/metrics"
	"github.com/ferndesk/roomscribe/internal/transcript"
)

const forwardTimeout = 10 * time.Second

// HTTPForwarder POSTs each finalized transcript event as JSON to every
// configured receiver. Delivery failures are logged and counted, never
// surfaced; a slow or broken receiver must not stall the pipeline.
type HTTPForwarder struct {
	urls   []string
	client *http.Client
}

func NewHTTPForwarder(urls []string) forward.Forwarder {
	return &HTTPForwarder{
		urls:   urls,
		client: &http.Client{Timeout: forwardTimeout},
	}
}

func (f *HTTPForwarder) Forward(ctx context.Context, ev transcript.Event) {
	if len(f.urls) == 0 {
		return
	}

	b, err := json.Marshal(ev)
	if err != nil {
		slog.Error("marshal transcript event", "room_id", ev.RoomID, "error", err)
		return
	}
	for _, url := range f.urls {
		if err := f.post(ctx, url, b); err != nil {
			metrics.Default.TranscriptForwardErrors.Inc()
			slog.Warn("forward transcript", "url", url, "room_id", ev.RoomID, "error", err)
		}
	}
}

func (f *HTTPForwarder) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if !isHTTPSuccessStatus(resp.StatusCode) {
		return fmt.Errorf("receiver returned status %d", resp.StatusCode)
	}
	return nil
}

func isHTTPSuccessStatus(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}
