package driver_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wessimpson/lobsim/internal/book"
	"github.com/wessimpson/lobsim/internal/driver"
	"github.com/wessimpson/lobsim/internal/netsim"
	"github.com/wessimpson/lobsim/internal/sim"
)

type countingPublisher struct {
	count int
}

func (p *countingPublisher) Publish(sim.Snapshot) { p.count++ }

func TestDriver_RunTicksAndPublishesUntilCancelled(t *testing.T) {
	b := book.New()
	s := sim.New(b, 1, 0)
	pub := &countingPublisher{}
	d := driver.New(s, 5*time.Millisecond, 5, pub, 5)

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()

	err := d.Run(ctx)
	require.NoError(t, err)
	assert.Greater(t, pub.count, 0)
}

func TestDriver_HealthStartsHealthy(t *testing.T) {
	b := book.New()
	s := sim.New(b, 1, 0)
	d := driver.New(s, time.Second, 5, nil, 5)

	h := d.Health()
	assert.Equal(t, driver.StatusHealthy, h.Status)
	assert.Equal(t, 0, h.TotalErrors)
}

func TestDriver_PlaceOrderGoesThroughGate(t *testing.T) {
	b := book.New()
	_, err := b.Place(book.Order{ID: 1, Side: book.Sell, Kind: book.Limit, Price: 1000000, Qty: 100, TS: 1})
	require.NoError(t, err)
	s := sim.New(b, 1, 0)
	d := driver.New(s, time.Second, 5, nil, 5)

	trades, err := d.PlaceOrder(book.Order{ID: 2, Side: book.Buy, Kind: book.Market, Qty: 50, TS: 2})
	require.NoError(t, err)
	assert.Len(t, trades, 1)
}

// alwaysFatalSimulator builds a simulator whose every synthetic step
// places a zero-quantity market order, which the engine rejects with a
// fatal (non-recoverable) invalid-qty error on every tick. Market making
// is disabled and drop/jitter zeroed out so the only thing each step does
// is fail, deterministically.
func alwaysFatalSimulator() *sim.Simulator {
	b := book.New()
	return sim.New(b, 1, 0,
		sim.WithNetModel(netsim.Model{}),
		sim.WithMarketMakerConfig(sim.MarketMakerConfig{MMProbability: 0}),
		sim.WithOrderGenerationConfig(sim.OrderGenerationConfig{
			MarketOrderProb:     1,
			MeanOrderIntervalNS: 1_000_000,
			MinOrderSize:        0,
			MaxOrderSize:        0,
		}),
	)
}

func TestDriver_FatalStepErrorEscalatesAfterMaxConsecutive(t *testing.T) {
	d := driver.New(alwaysFatalSimulator(), time.Millisecond, 5, &countingPublisher{}, 2)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := d.Run(ctx)
	require.Error(t, err)

	h := d.Health()
	assert.Equal(t, 0, h.ConsecutiveErrors) // zeroed by the final recovery attempt just before giving up
	assert.GreaterOrEqual(t, h.TotalErrors, 8)
	assert.GreaterOrEqual(t, h.RecentErrors, 8)
}

func TestDriver_HealthDegradesOnSustainedErrorWindow(t *testing.T) {
	// maxConsecutive above the DEGRADED threshold, so more than threshold
	// fatal errors land in the window before the first recovery; recovery
	// resets the consecutive count and metrics, not the error window.
	d := driver.New(alwaysFatalSimulator(), time.Millisecond, 5, nil, degradedErrorThresholdForTest+1)

	ctx, cancel := context.WithTimeout(context.Background(), 400*time.Millisecond)
	defer cancel()
	_ = d.Run(ctx)

	h := d.Health()
	assert.Equal(t, driver.StatusDegraded, h.Status)
}

// degradedErrorThresholdForTest mirrors the driver package's
// degradedErrorThreshold; kept local since the constant is unexported.
const degradedErrorThresholdForTest = 100
