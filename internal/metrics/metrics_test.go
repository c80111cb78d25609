package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/edumarques81/beebridge/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func scrape(t *testing.T) string {
	t.Helper()
	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	promhttp.Handler().ServeHTTP(recorder, req)
	return recorder.Body.String()
}

func TestRecordHelpers(t *testing.T) {
	metrics.RecordProtocolUpdate("metadata", metrics.ResultIncomplete)
	metrics.RecordAction("volume")
	metrics.RecordMailboxOverwrite()
	metrics.RecordTransition("attached", true)
	metrics.RecordUpload(metrics.ResultError)
	metrics.RecordPresenceUpdate(metrics.ResultOK)

	body := scrape(t)

	expected := []string{
		`beebridge_protocol_updates_total{file="metadata",result="incomplete"}`,
		`beebridge_actions_total{verb="volume"}`,
		`beebridge_mailbox_overwrites_total`,
		`beebridge_lifecycle_transitions_total{state="attached"}`,
		`beebridge_attached 1`,
		`beebridge_uploads_total{result="error"}`,
		`beebridge_presence_updates_total{result="ok"}`,
	}
	for _, want := range expected {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in metrics output", want)
		}
	}
}

func TestRecordTransition_Detached(t *testing.T) {
	metrics.RecordTransition("detached", false)

	if body := scrape(t); !strings.Contains(body, "beebridge_attached 0") {
		t.Error("expected attached gauge to be 0")
	}
}
