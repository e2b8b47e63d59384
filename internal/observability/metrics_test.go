package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestObserveRequestCountsByOutcome(t *testing.T) {
	before := testutil.ToFloat64(apiRequestCounter.WithLabelValues("list activities", "not_found"))
	ObserveRequest("list activities", "not_found", 20*time.Millisecond)
	after := testutil.ToFloat64(apiRequestCounter.WithLabelValues("list activities", "not_found"))
	require.Equal(t, before+1, after)
}

func TestRecordTokenRefreshIgnoresZero(t *testing.T) {
	ts := time.Unix(1_700_000_000, 0)
	RecordTokenRefresh(ts)
	RecordTokenRefresh(time.Time{})
	require.Equal(t, float64(ts.Unix()), testutil.ToFloat64(lastTokenRefreshGauge))
}

func TestCounters(t *testing.T) {
	write := testutil.ToFloat64(sessionApplyCounter.WithLabelValues("duplicate"))
	RecordSessionWrite("duplicate")
	require.Equal(t, write+1, testutil.ToFloat64(sessionApplyCounter.WithLabelValues("duplicate")))

	stale := testutil.ToFloat64(staleResponseCounter.WithLabelValues("detail"))
	RecordStaleResponse("detail")
	require.Equal(t, stale+1, testutil.ToFloat64(staleResponseCounter.WithLabelValues("detail")))
}
