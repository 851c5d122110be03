package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	goRecover "github.com/MrEthical07/goRecover"
)

type fakeSource struct {
	snapshot goRecover.MetricsSnapshot
	dropped  uint64
	failed   uint64
}

func (f fakeSource) MetricsSnapshot() goRecover.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                       { return f.dropped }
func (f fakeSource) AuditFailed() uint64                        { return f.failed }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goRecover.MetricsSnapshot{
			Counters:   map[goRecover.MetricID]uint64{},
			Histograms: map[goRecover.MetricID][]uint64{},
		},
	})

	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
}

func TestRenderDeterministicIncludesCounterAndHistogram(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goRecover.MetricsSnapshot{
			Counters: map[goRecover.MetricID]uint64{
				goRecover.MetricRecoveryValidateSuccess: 7,
				goRecover.MetricRecoveryLockedOut:       3,
			},
			Histograms: map[goRecover.MetricID][]uint64{
				goRecover.MetricValidateLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
		failed:  1,
	})

	out := exp.Render()
	for _, want := range []string{
		"gorecover_recovery_validate_success_total 7",
		"gorecover_recovery_locked_out_total 3",
		"gorecover_recovery_created_total 0",
		"gorecover_validate_latency_seconds_bucket{le=\"0.005\"} 1",
		"gorecover_validate_latency_seconds_bucket{le=\"+Inf\"} 36",
		"gorecover_audit_mirror_dropped_total 2",
		"gorecover_audit_mirror_failed_total 1",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
}

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goRecover.MetricsSnapshot{
			Counters:   map[goRecover.MetricID]uint64{goRecover.MetricRecoveryCreated: 1},
			Histograms: map[goRecover.MetricID][]uint64{},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected prometheus content type, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func BenchmarkRender(b *testing.B) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goRecover.MetricsSnapshot{
			Counters: map[goRecover.MetricID]uint64{
				goRecover.MetricRecoveryCreated:         1000,
				goRecover.MetricRecoveryDelivered:       1200,
				goRecover.MetricRecoveryValidateSuccess: 800,
				goRecover.MetricRecoveryValidateFailure: 40,
				goRecover.MetricRateLimitHit:            12,
			},
			Histograms: map[goRecover.MetricID][]uint64{
				goRecover.MetricValidateLatency: {10, 20, 30, 40, 50, 60, 70, 80},
			},
		},
	})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = exp.Render()
	}
}
