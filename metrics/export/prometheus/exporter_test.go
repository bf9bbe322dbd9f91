package prometheus

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrEthical07/studyauth"
	"github.com/MrEthical07/studyauth/metrics/export/internaldefs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeSource struct {
	snapshot studyauth.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() studyauth.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                       { return f.dropped }

func sampleSource() fakeSource {
	return fakeSource{
		snapshot: studyauth.MetricsSnapshot{
			Counters: map[studyauth.MetricID]uint64{
				studyauth.MetricLoginSuccess: 7,
			},
			Histograms: map[studyauth.MetricID][]uint64{
				studyauth.MetricValidateLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	}
}

func TestCollectorCountsEverySeries(t *testing.T) {
	c := NewCollectorFromSource(sampleSource())
	want := len(internaldefs.CounterDefs) + len(internaldefs.HistogramDefs) + 1
	if got := testutil.CollectAndCount(c); got != want {
		t.Fatalf("CollectAndCount = %d, want %d", got, want)
	}
}

func TestCollectorValues(t *testing.T) {
	c := NewCollectorFromSource(sampleSource())

	expected := `
# HELP studyauth_login_success_total Successful password logins.
# TYPE studyauth_login_success_total counter
studyauth_login_success_total 7
# HELP studyauth_audit_dropped_total Dropped audit events due to dispatcher backpressure.
# TYPE studyauth_audit_dropped_total counter
studyauth_audit_dropped_total 2
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"studyauth_login_success_total", "studyauth_audit_dropped_total"); err != nil {
		t.Fatal(err)
	}
}

func TestHandlerServesHistogram(t *testing.T) {
	srv := httptest.NewServer(Handler(NewCollectorFromSource(sampleSource())))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	out := string(body)

	for _, want := range []string{
		`studyauth_authenticate_latency_seconds_bucket{le="0.005"} 1`,
		`studyauth_authenticate_latency_seconds_bucket{le="0.5"} 28`,
		`studyauth_authenticate_latency_seconds_bucket{le="+Inf"} 36`,
		`studyauth_authenticate_latency_seconds_count 36`,
		"go_goroutines",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestCollectorRegistersCleanly(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	if err := reg.Register(NewCollectorFromSource(sampleSource())); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := reg.Gather(); err != nil {
		t.Fatalf("Gather: %v", err)
	}
}
