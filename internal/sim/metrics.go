package sim

import (
	"github.com/wessimpson/lobsim/internal/book"
	"github.com/wessimpson/lobsim/internal/price"
)

// Metrics tracks inventory, cash, and mark-to-market PnL from the
// simulated participant's perspective.
type Metrics struct {
	Inventory int64
	Cash      int64
	PnL       int64
}

// UpdateTrade applies one fill: buying increases inventory and spends
// cash; selling decreases inventory and receives cash.
func (m *Metrics) UpdateTrade(side book.Side, qty uint64, px price.Ticks) {
	notional := int64(qty) * int64(px)
	if side == book.Buy {
		m.Inventory += int64(qty)
		m.Cash -= notional
	} else {
		m.Inventory -= int64(qty)
		m.Cash += notional
	}
}

// RecalculatePnL marks the position to mid when available, else reports
// the cash position alone.
func (m *Metrics) RecalculatePnL(midTicks *int64) {
	if midTicks != nil {
		m.PnL = m.Cash + m.Inventory*(*midTicks)
		return
	}
	m.PnL = m.Cash
}
