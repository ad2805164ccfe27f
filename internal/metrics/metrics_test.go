package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eve-arbitrage/internal/engine"
	"eve-arbitrage/internal/esi"
	"eve-arbitrage/internal/market"
)

var (
	_ esi.Observer        = (*Collector)(nil)
	_ market.Observer     = (*Collector)(nil)
	_ engine.ScanObserver = (*Collector)(nil)
)

func TestCollector_ESIRequests(t *testing.T) {
	c := New()
	c.ObserveESIRequest("markets_orders", 200, 300*time.Millisecond)
	c.ObserveESIRequest("markets_orders", 200, 100*time.Millisecond)
	c.ObserveESIRequest("markets_orders", 503, time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.esiRequestsTotal.WithLabelValues("markets_orders", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.esiRequestsTotal.WithLabelValues("markets_orders", "503")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.esiRequestDuration))
}

func TestCollector_CacheLookups(t *testing.T) {
	c := New()
	for _, r := range []string{"hit", "hit", "refresh", "stale"} {
		c.ObserveCacheLookup(r)
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(c.cacheLookupsTotal.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cacheLookupsTotal.WithLabelValues("stale")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.cacheLookupsTotal.WithLabelValues("miss")))
}

func TestCollector_FailedScanKeepsGauges(t *testing.T) {
	c := New()
	c.ObserveScan(engine.ScanCompleted, 12*time.Second, 42, 1)
	c.ObserveScan(engine.ScanFailed, time.Second, 0, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.scansTotal.WithLabelValues(engine.ScanCompleted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.scansTotal.WithLabelValues(engine.ScanFailed)))
	assert.Equal(t, 42.0, testutil.ToFloat64(c.opportunities))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.routesFailed))
	assert.Greater(t, testutil.ToFloat64(c.lastScanTimestamp), 0.0)
}

func TestCollector_Handler(t *testing.T) {
	c := New()
	c.ObserveCacheLookup("miss")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `eve_arbitrage_cache_lookups_total{result="miss"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
