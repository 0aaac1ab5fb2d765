package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.ProbesTotal.Add(3)
	m.ProbeFailures.Add(1)
	m.SetCrowdCount("playa-de-palma", 42)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{
		"coastwatch_probes_total 3",
		"coastwatch_probe_failures_total 1",
		`coastwatch_crowd_count{webcam="playa-de-palma"} 42`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("Expected metrics output to contain %q", want)
		}
	}
}
