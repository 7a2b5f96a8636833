package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(Registrations.WithLabelValues("generator"))
	Registrations.WithLabelValues("generator").Inc()
	if got := testutil.ToFloat64(Registrations.WithLabelValues("generator")); got != before+1 {
		t.Fatalf("registrations = %v, want %v", got, before+1)
	}
}

func TestHandler(t *testing.T) {
	TasksRequested.Inc()

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "oracle_tasks_requested_total") {
		t.Fatal("tasks_requested_total not exported")
	}
}
