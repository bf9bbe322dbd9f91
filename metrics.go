package studyauth

import (
	"sync/atomic"
	"time"
)

// MetricID indexes an in-process counter.
type MetricID uint16

const (
	// MetricRegisterRequested counts sign-ups that stored a pending registration and sent a code.
	MetricRegisterRequested MetricID = iota
	// MetricRegisterConflict counts sign-ups rejected because the email is taken.
	MetricRegisterConflict
	// MetricRegisterRateLimited counts sign-ups refused by the resend cooldown.
	MetricRegisterRateLimited
	// MetricRegisterDeliveryFailed counts sign-ups whose code could not be mailed.
	MetricRegisterDeliveryFailed
	// MetricRegistrationVerified counts pending registrations turned into accounts.
	MetricRegistrationVerified
	// MetricRegistrationInvalidCode counts verification attempts with a wrong code.
	MetricRegistrationInvalidCode
	// MetricRegistrationExpired counts verification attempts after the pending record lapsed.
	MetricRegistrationExpired
	// MetricLoginSuccess counts password logins that issued a session.
	MetricLoginSuccess
	// MetricLoginFailure counts password logins rejected for bad credentials.
	MetricLoginFailure
	// MetricLoginRateLimited counts logins refused by the per-email throttle.
	MetricLoginRateLimited
	// MetricPasswordHashUpgraded counts hashes rehashed on login under newer parameters.
	MetricPasswordHashUpgraded
	// MetricSessionCreated counts issued sessions.
	MetricSessionCreated
	// MetricSessionRotated counts sessions replaced during refresh.
	MetricSessionRotated
	// MetricSessionValidated counts successful Authenticate calls.
	MetricSessionValidated
	// MetricSessionRejected counts Authenticate calls with no live session.
	MetricSessionRejected
	// MetricRefreshSuccess counts refreshes that minted an access token.
	MetricRefreshSuccess
	// MetricRefreshFailure counts refreshes denied for any reason.
	MetricRefreshFailure
	// MetricLogout counts logouts.
	MetricLogout
	// MetricOAuthLogin counts sign-ins through an external provider.
	MetricOAuthLogin
	// MetricOAuthUserCreated counts accounts created from an external identity.
	MetricOAuthUserCreated
	// MetricOAuthLinked counts existing accounts linked to a provider by email.
	MetricOAuthLinked
	// MetricPasswordChangeSuccess counts completed password changes.
	MetricPasswordChangeSuccess
	// MetricPasswordChangeInvalidOld counts password changes with a wrong current password.
	MetricPasswordChangeInvalidOld
	// MetricPasswordChangeReuseRejected counts password changes that reused the current password.
	MetricPasswordChangeReuseRejected
	// MetricPasswordResetRequest counts reset requests, known and unknown emails alike.
	MetricPasswordResetRequest
	// MetricPasswordResetConfirmSuccess counts completed password resets.
	MetricPasswordResetConfirmSuccess
	// MetricPasswordResetConfirmFailure counts reset confirmations with a bad code.
	MetricPasswordResetConfirmFailure
	// MetricValidateLatency is the only histogram; it times Authenticate.
	MetricValidateLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a fixed set of lock-free counters plus one latency histogram.
// A nil or disabled *Metrics ignores all updates.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all counters. Histogram buckets
// are non-cumulative.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics returns counters configured by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether the latency histogram is recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in the histogram for id.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricValidateLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value returns the current count for id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricValidateLatency].buckets[i])
		}
		s.Histograms[MetricValidateLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
