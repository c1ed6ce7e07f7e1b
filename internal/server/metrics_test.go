package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// newMetricsTestServer builds a Server backed by a fresh isolated registry so
// tests do not pollute prometheus.DefaultRegisterer.
func newMetricsTestServer(t *testing.T, gen Generator) (*Server, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	s, err := New(gen, &Config{
		Logger:          discardLogger(),
		MetricsRegistry: reg,
		MetricsGatherer: reg,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.stopRL)
	return s, reg
}

// findMetric returns the metric family named name, or nil.
func findMetric(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

// counterWithLabel returns the value of the counter in mf whose label
// name has the given value.
func counterWithLabel(mf *dto.MetricFamily, name, value string) (float64, bool) {
	if mf == nil {
		return 0, false
	}
	for _, m := range mf.GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == name && lp.GetValue() == value {
				return m.GetCounter().GetValue(), true
			}
		}
	}
	return 0, false
}

func Test_Metrics_EndpointReturns200(t *testing.T) {
	t.Parallel()
	s, _ := newMetricsTestServer(t, &fakeGenerator{text: "CV"})

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL+"/metrics", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("want 200, got %d", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("want text/plain content-type, got %q", ct)
	}
}

func Test_Metrics_GenerateOutcomes(t *testing.T) {
	t.Parallel()
	s, reg := newMetricsTestServer(t, &fakeGenerator{text: "CV"})
	h := s.Handler()

	for _, body := range []string{`{"query":"cv"}`, `{"query":"cv"}`, `not-json`} {
		req := httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader(body))
		req.RemoteAddr = "127.0.0.1:1234"
		h.ServeHTTP(httptest.NewRecorder(), req)
	}

	mf := findMetric(t, reg, "cvgen_generate_requests_total")
	if v, ok := counterWithLabel(mf, "outcome", outcomeOK); !ok || v != 2 {
		t.Errorf("outcome=ok: want 2, got %v (found=%v)", v, ok)
	}
	if v, ok := counterWithLabel(mf, "outcome", outcomeBadRequest); !ok || v != 1 {
		t.Errorf("outcome=bad_request: want 1, got %v (found=%v)", v, ok)
	}

	httpTotal := findMetric(t, reg, "cvgen_http_requests_total")
	if v, ok := counterWithLabel(httpTotal, labelHandler, "generate"); !ok || v < 2 {
		t.Errorf("http requests for generate handler: got %v (found=%v)", v, ok)
	}
}

func Test_Metrics_InFlightGaugeReturnsToZero(t *testing.T) {
	t.Parallel()
	s, reg := newMetricsTestServer(t, &fakeGenerator{text: "CV"})

	req := httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader(`{}`))
	req.RemoteAddr = "127.0.0.1:1234"
	s.Handler().ServeHTTP(httptest.NewRecorder(), req)

	mf := findMetric(t, reg, "cvgen_generate_in_flight")
	if mf == nil {
		t.Fatal("cvgen_generate_in_flight not found in gathered metrics")
	}
	if v := mf.GetMetric()[0].GetGauge().GetValue(); v != 0 {
		t.Errorf("want in_flight=0 after request, got %v", v)
	}
}
