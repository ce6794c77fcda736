package observability

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		format    string
		wantDebug bool
		wantJSON  bool
	}{
		{name: "Default", level: "", format: "", wantDebug: false},
		{name: "Debug", level: "DEBUG", format: "text", wantDebug: true},
		{name: "JSON", level: "info", format: "json", wantJSON: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(&buf, tt.level, tt.format)
			logger.Debug("Debug line")
			logger.Info("Info line", "user_id", "alice")

			out := buf.String()
			if got := strings.Contains(out, "Debug line"); got != tt.wantDebug {
				t.Errorf("Debug logged = %v, want %v", got, tt.wantDebug)
			}
			if tt.wantJSON {
				var rec map[string]any
				if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
					t.Fatalf("Could not decode JSON log line %q: %v", out, err)
				}
				if rec["user_id"] != "alice" {
					t.Errorf("Got user_id %v, want alice", rec["user_id"])
				}
			} else if !strings.Contains(out, "user_id=alice") {
				t.Errorf("Text log %q does not contain user_id=alice", out)
			}
		})
	}
}

func TestObserveMark(t *testing.T) {
	okBefore := testutil.ToFloat64(MarkViewedBatchesTotal.WithLabelValues(TriggerDismiss, "ok"))
	errBefore := testutil.ToFloat64(MarkViewedBatchesTotal.WithLabelValues(TriggerDismiss, "error"))
	idsBefore := testutil.ToFloat64(MarkViewedMessagesTotal.WithLabelValues(TriggerDismiss))

	ObserveMark(TriggerDismiss, 3, nil)
	ObserveMark(TriggerDismiss, 2, errors.New("unavailable"))

	if got := testutil.ToFloat64(MarkViewedBatchesTotal.WithLabelValues(TriggerDismiss, "ok")) - okBefore; got != 1 {
		t.Errorf("Got %v ok batches, want 1", got)
	}
	if got := testutil.ToFloat64(MarkViewedBatchesTotal.WithLabelValues(TriggerDismiss, "error")) - errBefore; got != 1 {
		t.Errorf("Got %v failed batches, want 1", got)
	}
	if got := testutil.ToFloat64(MarkViewedMessagesTotal.WithLabelValues(TriggerDismiss)) - idsBefore; got != 5 {
		t.Errorf("Got %v ids, want 5", got)
	}
}
