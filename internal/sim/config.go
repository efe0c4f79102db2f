package sim

import "github.com/wessimpson/lobsim/internal/price"

// Mode selects how Simulator.Step sources its orders.
type Mode int8

const (
	ModeSynthetic Mode = iota
	ModeHistorical
	ModeHybrid
)

func (m Mode) String() string {
	switch m {
	case ModeSynthetic:
		return "synthetic"
	case ModeHistorical:
		return "historical"
	case ModeHybrid:
		return "hybrid"
	}
	return "unknown"
}

// MarketMakerConfig parameterizes the synthetic market-making order
// generator.
type MarketMakerConfig struct {
	TargetSpread  price.Ticks
	MaxInventory  int64
	OrderSize     uint64
	MMProbability float64
	InventorySkew float64
}

// DefaultMarketMakerConfig mirrors the reference defaults: a one-cent
// target spread, 1000-unit inventory cap, 100-unit clip size, 70%
// participation probability, 0.1% inventory skew.
func DefaultMarketMakerConfig() MarketMakerConfig {
	oneCent, _ := price.FromDecimalString("0.01")
	return MarketMakerConfig{
		TargetSpread:  oneCent,
		MaxInventory:  1000,
		OrderSize:     100,
		MMProbability: 0.7,
		InventorySkew: 0.001,
	}
}

// OrderGenerationConfig parameterizes the synthetic taker-order generator.
type OrderGenerationConfig struct {
	MarketOrderProb     float64
	MeanOrderIntervalNS uint64
	MinOrderSize        uint64
	MaxOrderSize        uint64
	PriceRangeFraction  float64
}

// DefaultOrderGenerationConfig mirrors the reference defaults: 30% market
// orders, 1ms mean inter-order interval, clip sizes 10-500, ±2% price
// range around mid for resting limit orders.
func DefaultOrderGenerationConfig() OrderGenerationConfig {
	return OrderGenerationConfig{
		MarketOrderProb:     0.3,
		MeanOrderIntervalNS: 1_000_000,
		MinOrderSize:        10,
		MaxOrderSize:        500,
		PriceRangeFraction:  0.02,
	}
}
