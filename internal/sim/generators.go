package sim

import (
	"github.com/wessimpson/lobsim/internal/book"
	"github.com/wessimpson/lobsim/internal/price"
)

// generateMarketMakingOrders builds up to two resting limit orders (one
// per side) that quote around the current mid at MMConfig.TargetSpread,
// skewed by inventory.
func (s *Simulator) generateMarketMakingOrders() []book.Order {
	var orders []book.Order

	bestBid, hasBid := s.Engine.BestBid()
	bestAsk, hasAsk := s.Engine.BestAsk()
	mid, hasMid := s.Engine.MidPrice()

	halfSpread := int64(s.MMConfig.TargetSpread) / 2
	inventoryAdjustment := int64(float64(s.Metrics.Inventory) * s.MMConfig.InventorySkew)

	var targetBid, targetAsk price.Ticks
	if hasMid {
		midTicks := int64(mid)
		targetBid = price.Ticks(midTicks - halfSpread - inventoryAdjustment)
		targetAsk = price.Ticks(midTicks + halfSpread - inventoryAdjustment)
	} else {
		base, _ := price.FromDecimalString("100.00")
		targetBid = price.Ticks(int64(base) - halfSpread)
		targetAsk = price.Ticks(int64(base) + halfSpread)
	}

	shouldBid := s.RNG.Float64() < s.MMConfig.MMProbability &&
		s.Metrics.Inventory < s.MMConfig.MaxInventory &&
		(!hasBid || bestBid < targetBid)
	shouldAsk := s.RNG.Float64() < s.MMConfig.MMProbability &&
		s.Metrics.Inventory > -s.MMConfig.MaxInventory &&
		(!hasAsk || bestAsk > targetAsk)

	if shouldBid && targetBid > 0 {
		orders = append(orders, book.Order{
			ID: s.allocOrderID(), Side: book.Buy, Kind: book.Limit,
			Price: targetBid, Qty: s.MMConfig.OrderSize, TS: s.currentTime,
		})
	}
	if shouldAsk && targetAsk > 0 {
		orders = append(orders, book.Order{
			ID: s.allocOrderID(), Side: book.Sell, Kind: book.Limit,
			Price: targetAsk, Qty: s.MMConfig.OrderSize, TS: s.currentTime,
		})
	}
	return orders
}

// generateMarketTakerOrder produces one random order representing
// aggressive order flow: a coin-flip side, a clip size uniform in
// [MinOrderSize, MaxOrderSize], and a market order with probability
// MarketOrderProb, otherwise a limit order priced near mid. Returns
// ok=false when a limit price
// could not be derived (no market exists yet).
func (s *Simulator) generateMarketTakerOrder() (*book.Order, bool) {
	side := book.Buy
	if s.RNG.Bool() {
		side = book.Sell
	}
	qty := s.RNG.UniformUint64(s.OrderGenConfig.MinOrderSize, s.OrderGenConfig.MaxOrderSize)

	if s.RNG.Float64() < s.OrderGenConfig.MarketOrderProb {
		return &book.Order{ID: s.allocOrderID(), Side: side, Kind: book.Market, Qty: qty, TS: s.currentTime}, true
	}

	px, ok := s.generateLimitOrderPrice(side)
	if !ok {
		return nil, false
	}
	return &book.Order{ID: s.allocOrderID(), Side: side, Kind: book.Limit, Price: px, Qty: qty, TS: s.currentTime}, true
}

// generateLimitOrderPrice scatters a limit price within
// OrderGenConfig.PriceRangeFraction of the current mid, occasionally
// crossing the mid to produce aggressive fills, matching
// generate_limit_order_price's mirrored buy/sell branches.
func (s *Simulator) generateLimitOrderPrice(side book.Side) (price.Ticks, bool) {
	mid, ok := s.Engine.MidPrice()
	if !ok {
		return 0, false
	}
	midTicks := int64(mid)
	rangeTicks := int64(mid * s.OrderGenConfig.PriceRangeFraction)
	if rangeTicks < 0 {
		rangeTicks = 0
	}
	offset := s.RNG.UniformInt64(0, rangeTicks)

	var px int64
	switch side {
	case book.Buy:
		if s.RNG.Bool() {
			px = midTicks - offset
		} else {
			px = midTicks + offset
		}
	default:
		if s.RNG.Bool() {
			px = midTicks + offset
		} else {
			px = midTicks - offset
		}
	}
	if px <= 0 {
		return 0, false
	}
	return price.Ticks(px), true
}
