package risk

import (
	"context"
	"testing"
	"time"

	"arbengine/internal/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeExposure struct {
	exposure  map[string]float64
	duplicate bool
	err       error
}

func (f *fakeExposure) CurrentExposure(ctx context.Context, key string) (float64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.exposure[key], nil
}

func (f *fakeExposure) RecentDuplicate(ctx context.Context, marketID string, window time.Duration) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.duplicate, nil
}

func testConfig() Config {
	return Config{
		MinEdgePct:            2.0,
		MinLiquidity:          100,
		MaxPositionSize:       500,
		VolatilityScaling:     true,
		VolatilityThreshold:   1.5,
		VolatilityScaleFactor: 0.7,
		MaxAssetExposure:      1000,
		MaxTotalExposure:      5000,
		DuplicateWindow:       60 * time.Second,
	}
}

func baseRequest() Request {
	liq := 500.0
	return Request{
		Asset: "BTC", Venue: "kalshi", MarketID: "mkt-1", MarketKind: "crypto",
		EdgePct: 5.0, SuggestedSize: 200, Liquidity: &liq, VolatilityFactor: 1.0,
	}
}

func TestGateAcceptsHealthyRequest(t *testing.T) {
	exp := &fakeExposure{exposure: map[string]float64{"BTC": 0, "crypto": 0}}
	g := NewGate(testConfig(), exp, zap.NewNop())

	size, err := g.Validate(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Equal(t, 200.0, size)
}

func TestGateKillSwitchBlocksEverything(t *testing.T) {
	exp := &fakeExposure{exposure: map[string]float64{}}
	g := NewGate(testConfig(), exp, zap.NewNop())
	g.Halt()

	_, err := g.Validate(context.Background(), baseRequest())
	require.Error(t, err)
	var rej *errs.RiskRejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, errs.ReasonHalted, rej.Reason)
}

func TestGateEdgeBelowMinBlocks(t *testing.T) {
	exp := &fakeExposure{exposure: map[string]float64{}}
	g := NewGate(testConfig(), exp, zap.NewNop())

	req := baseRequest()
	req.EdgePct = 1.0
	_, err := g.Validate(context.Background(), req)
	require.Error(t, err)
	var rej *errs.RiskRejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, errs.ReasonEdgeBelowMin, rej.Reason)
}

func TestGateInsufficientLiquidityBlocks(t *testing.T) {
	exp := &fakeExposure{exposure: map[string]float64{}}
	g := NewGate(testConfig(), exp, zap.NewNop())

	req := baseRequest()
	liq := 10.0
	req.Liquidity = &liq
	_, err := g.Validate(context.Background(), req)
	require.Error(t, err)
	var rej *errs.RiskRejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, errs.ReasonInsufficientLiquidity, rej.Reason)
}

func TestGateSizeCapClampsSuggestedSize(t *testing.T) {
	exp := &fakeExposure{exposure: map[string]float64{}}
	g := NewGate(testConfig(), exp, zap.NewNop())

	req := baseRequest()
	req.SuggestedSize = 10000
	size, err := g.Validate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 500.0, size)
}

func TestGateVolatilityScalingReducesSize(t *testing.T) {
	exp := &fakeExposure{exposure: map[string]float64{}}
	g := NewGate(testConfig(), exp, zap.NewNop())

	req := baseRequest()
	req.VolatilityFactor = 2.0
	size, err := g.Validate(context.Background(), req)
	require.NoError(t, err)
	assert.InDelta(t, 140.0, size, 0.01)
}

func TestGateAssetExposureExceededBlocks(t *testing.T) {
	exp := &fakeExposure{exposure: map[string]float64{"BTC": 995, "crypto": 0}}
	g := NewGate(testConfig(), exp, zap.NewNop())

	_, err := g.Validate(context.Background(), baseRequest())
	require.Error(t, err)
	var rej *errs.RiskRejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, errs.ReasonAssetExposureExceeded, rej.Reason)
}

func TestGateAssetExposureReducesSize(t *testing.T) {
	exp := &fakeExposure{exposure: map[string]float64{"BTC": 900, "crypto": 0}}
	g := NewGate(testConfig(), exp, zap.NewNop())

	size, err := g.Validate(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Equal(t, 100.0, size)
}

func TestGateTotalExposureExceededBlocks(t *testing.T) {
	exp := &fakeExposure{exposure: map[string]float64{"BTC": 0, "crypto": 4995}}
	g := NewGate(testConfig(), exp, zap.NewNop())

	_, err := g.Validate(context.Background(), baseRequest())
	require.Error(t, err)
	var rej *errs.RiskRejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, errs.ReasonTotalExposureExceeded, rej.Reason)
}

func TestGateDuplicateTradeBlocks(t *testing.T) {
	exp := &fakeExposure{exposure: map[string]float64{"BTC": 0, "crypto": 0}, duplicate: true}
	g := NewGate(testConfig(), exp, zap.NewNop())

	_, err := g.Validate(context.Background(), baseRequest())
	require.Error(t, err)
	var rej *errs.RiskRejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, errs.ReasonDuplicateTrade, rej.Reason)
}

func TestGateNilExposureSkipsExternalChecks(t *testing.T) {
	g := NewGate(testConfig(), nil, zap.NewNop())
	size, err := g.Validate(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Equal(t, 200.0, size)
}
