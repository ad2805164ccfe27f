package cli

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eve-arbitrage/internal/config"
	"eve-arbitrage/internal/engine"
)

func TestScanParams_MapsConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Routes = [][]string{{"the forge", "Domain"}, {"The Forge", "Nowhere"}}
	cfg.Bidirectional = false

	p := scanParams(cfg)
	require.Len(t, p.Regions, 5)
	require.Len(t, p.Routes, 2)
	assert.Equal(t, engine.Region{ID: 10000002, Name: "The Forge"}, p.Routes[0].Source)
	assert.Equal(t, engine.Region{ID: 10000043, Name: "Domain"}, p.Routes[0].Destination)
	// Unknown names survive so the scan can report them.
	assert.Equal(t, engine.Region{Name: "Nowhere"}, p.Routes[1].Destination)
	assert.Equal(t, 0.08, p.Fees.SalesTax)
	assert.Equal(t, 800.0, p.Fees.HaulingPerM3)
	assert.Equal(t, 1_000_000.0, p.Filters.MinProfit)
	assert.Equal(t, 4, p.MaxParallelRegions)

	var cfgErr *engine.ConfigError
	require.ErrorAs(t, p.Validate(), &cfgErr)
	assert.Contains(t, cfgErr.Error(), "Nowhere")
}

func TestScanParams_Bidirectional(t *testing.T) {
	cfg := config.Default()
	cfg.Routes = [][]string{{"The Forge", "Domain"}}
	p := scanParams(cfg)
	require.Len(t, p.Routes, 2)
	assert.Equal(t, "Domain -> The Forge", p.Routes[1].String())
	assert.NoError(t, p.Validate())
}

func TestISK(t *testing.T) {
	assert.Equal(t, "0.00", isk(0))
	assert.Equal(t, "999.50", isk(999.5))
	assert.Equal(t, "1,096.80", isk(1096.8))
	assert.Equal(t, "12,345,678.90", isk(12345678.9))
	assert.Equal(t, "-1,000.00", isk(-1000))
}

func TestPrintOpportunities_MarksStale(t *testing.T) {
	var buf bytes.Buffer
	printOpportunities(&buf, []engine.Opportunity{
		{TypeName: "Tritanium", SourceRegion: "The Forge", DestRegion: "Domain", BuyPrice: 100, SellPrice: 140,
			ProfitPerUnit: 21.936, MarginPct: 21.297, VolumeAvailable: 50, TotalProfit: 1096.8, Stale: true},
	})
	out := buf.String()
	assert.Contains(t, out, "Tritanium *")
	assert.Contains(t, out, "The Forge -> Domain")
	assert.Contains(t, out, "21.3%")
	assert.Contains(t, out, "1,096.80")

	buf.Reset()
	printOpportunities(&buf, nil)
	assert.Equal(t, "No opportunities.\n", buf.String())
}

// fakeESI serves two regions: Tritanium sells at 100 in The Forge and is
// bought at 140 in Domain.
func fakeESI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /markets/10000002/orders/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Pages", "1")
		fmt.Fprint(w, `[{"order_id":1,"type_id":34,"location_id":60003760,"price":100,"volume_remain":50,"is_buy_order":false}]`)
	})
	mux.HandleFunc("GET /markets/10000043/orders/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Pages", "1")
		fmt.Fprint(w, `[{"order_id":2,"type_id":34,"location_id":60008494,"price":140,"volume_remain":80,"is_buy_order":true}]`)
	})
	mux.HandleFunc("GET /universe/types/34/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"type_id":34,"name":"Tritanium","volume":0.01,"packaged_volume":0.01}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, esiURL string) string {
	t.Helper()
	dir := t.TempDir()
	yaml := fmt.Sprintf(`regions:
  - name: The Forge
    id: 10000002
  - name: Domain
    id: 10000043
routes:
  - ["The Forge", "Domain"]
bidirectional: false
fees:
  broker_fee_buy: 0.03
  broker_fee_sell: 0.03
  sales_tax: 0.08
  hauling_isk_per_m3: 0
filters:
  min_profit_margin_pct: 5
  min_net_isk_profit: 100
  min_volume_available: 1
esi:
  base_url: %s
  request_spacing: 0s
  max_retries: 0
database:
  type: sqlite
  path: %s
logging:
  level: error
  format: json
`, esiURL, filepath.Join(dir, "arb.db"))
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand("test")
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCommands_ScanThenQuery(t *testing.T) {
	srv := fakeESI(t)
	cfgPath := writeConfig(t, srv.URL)

	out, err := run(t, "--config", cfgPath, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "never")

	out, err = run(t, "--config", cfgPath, "scan")
	require.NoError(t, err)
	assert.Contains(t, out, "The Forge -> Domain")
	assert.Contains(t, out, "Tritanium")
	assert.Contains(t, out, "1,096.80")

	// A fresh process reads the persisted result set.
	out, err = run(t, "--config", cfgPath, "top", "--item", "trit")
	require.NoError(t, err)
	assert.Contains(t, out, "Tritanium")

	out, err = run(t, "--config", cfgPath, "top", "--dest", "The Forge")
	require.NoError(t, err)
	assert.Contains(t, out, "No opportunities.")

	out, err = run(t, "--config", cfgPath, "history")
	require.NoError(t, err)
	assert.Contains(t, out, engine.ScanCompleted)

	out, err = run(t, "--config", cfgPath, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Opportunities:")
	assert.True(t, strings.Contains(out, "idle"))
}

func TestCommands_ScanRejectsUnknownRegion(t *testing.T) {
	srv := fakeESI(t)
	cfgPath := writeConfig(t, srv.URL)
	raw, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	patched := strings.Replace(string(raw), `["The Forge", "Domain"]`, `["The Forge", "Nowhere"]`, 1)
	require.NoError(t, os.WriteFile(cfgPath, []byte(patched), 0o644))

	_, err = run(t, "--config", cfgPath, "scan")
	var cfgErr *engine.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, err.Error(), "Nowhere")
}
