package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"just host", "example.com", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	first := sourceFetchesTotal
	Init()

	require.NotNil(t, sourceFetchesTotal)
	require.Same(t, first, sourceFetchesTotal)
	require.NotNil(t, iconResolutionsTotal)
	require.NotNil(t, upsertsTotal)
	require.NotNil(t, httpRequestsTotal)
}

func TestObserveSourceFetch(t *testing.T) {
	Init()
	counter := sourceFetchesTotal.WithLabelValues("fetch_test", OutcomeSuccess)
	before := testutil.ToFloat64(counter)

	ObserveSourceFetch("fetch_test", OutcomeSuccess, 120*time.Millisecond)

	require.InDelta(t, before+1, testutil.ToFloat64(counter), 0.0001)
	require.Positive(t, testutil.CollectAndCount(sourceFetchDurationSeconds))
}

func TestObserveIconTierAndUpsert(t *testing.T) {
	Init()
	tier := iconResolutionsTotal.WithLabelValues("fallback", OutcomeFailure)
	upsert := upsertsTotal.WithLabelValues("inserted")
	tierBefore := testutil.ToFloat64(tier)
	upsertBefore := testutil.ToFloat64(upsert)

	ObserveIconTier("fallback", OutcomeFailure)
	ObserveUpsert("inserted")
	ObserveUpsert("inserted")

	require.InDelta(t, tierBefore+1, testutil.ToFloat64(tier), 0.0001)
	require.InDelta(t, upsertBefore+2, testutil.ToFloat64(upsert), 0.0001)
}

func TestWorkerGaugeAndStaticList(t *testing.T) {
	Init()
	before := testutil.ToFloat64(activeWorkers)
	IncActiveWorkers()
	require.InDelta(t, before+1, testutil.ToFloat64(activeWorkers), 0.0001)
	DecActiveWorkers()
	require.InDelta(t, before, testutil.ToFloat64(activeWorkers), 0.0001)

	SetStaticListEntries(7)
	require.InDelta(t, 7, testutil.ToFloat64(staticListEntries), 0.0001)
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
