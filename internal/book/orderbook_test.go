package book_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wessimpson/lobsim/internal/book"
	"github.com/wessimpson/lobsim/internal/price"
)

func tick(s string) price.Ticks {
	t, err := price.FromDecimalString(s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestPlace_SimpleFill(t *testing.T) {
	b := book.New()

	_, err := b.Place(book.Order{ID: 1, Side: book.Sell, Kind: book.Limit, Price: tick("100.00"), Qty: 50, TS: 1})
	require.NoError(t, err)

	trades, err := b.Place(book.Order{ID: 2, Side: book.Buy, Kind: book.Limit, Price: tick("100.00"), Qty: 50, TS: 2})
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, uint64(1), trades[0].MakerID)
	assert.Equal(t, uint64(2), trades[0].TakerID)
	assert.Equal(t, uint64(50), trades[0].Qty)
	assert.Equal(t, tick("100.00"), trades[0].Price)

	_, ok := b.BestAsk()
	assert.False(t, ok, "fully filled ask level must be removed")
}

func TestPlace_MarketSweepAcrossLevels(t *testing.T) {
	b := book.New()
	require.NoError(t, placeNoErr(b, book.Order{ID: 1, Side: book.Buy, Kind: book.Limit, Price: tick("50.00"), Qty: 100, TS: 1}))
	require.NoError(t, placeNoErr(b, book.Order{ID: 2, Side: book.Buy, Kind: book.Limit, Price: tick("49.90"), Qty: 100, TS: 2}))

	trades, err := b.Place(book.Order{ID: 3, Side: book.Sell, Kind: book.Market, Qty: 150, TS: 3})
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, uint64(100), trades[0].Qty)
	assert.Equal(t, tick("50.00"), trades[0].Price)
	assert.Equal(t, uint64(50), trades[1].Qty)
	assert.Equal(t, tick("49.90"), trades[1].Price)

	bid, ok := b.BestBid()
	require.True(t, ok)
	assert.Equal(t, tick("49.90"), bid)
	assert.Equal(t, uint64(50), b.TotalRestingQty(book.Buy))
}

func TestPlace_MarketOrderNoLiquidityIsRecoverable(t *testing.T) {
	b := book.New()
	trades, err := b.Place(book.Order{ID: 1, Side: book.Buy, Kind: book.Market, Qty: 10, TS: 1})
	assert.Nil(t, trades)
	require.Error(t, err)
	ee, ok := book.AsEngineError(err)
	require.True(t, ok)
	assert.True(t, ee.Kind.Recoverable())
}

func TestCancel_PreservesRemainingQueuePriority(t *testing.T) {
	b := book.New()
	require.NoError(t, placeNoErr(b, book.Order{ID: 1, Side: book.Buy, Kind: book.Limit, Price: tick("10.00"), Qty: 10, TS: 1}))
	require.NoError(t, placeNoErr(b, book.Order{ID: 2, Side: book.Buy, Kind: book.Limit, Price: tick("10.00"), Qty: 10, TS: 2}))

	qty, err := b.Cancel(1)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), qty)

	trades, err := b.Place(book.Order{ID: 3, Side: book.Sell, Kind: book.Limit, Price: tick("10.00"), Qty: 10, TS: 3})
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, uint64(2), trades[0].MakerID, "order 2 should have inherited front-of-queue priority")

	_, err = b.Cancel(1)
	assert.ErrorIs(t, err, book.ErrUnknownOrder)
}

func TestModify_PriceChangeLosesPriority(t *testing.T) {
	b := book.New()
	require.NoError(t, placeNoErr(b, book.Order{ID: 1, Side: book.Buy, Kind: book.Limit, Price: tick("10.00"), Qty: 10, TS: 1}))
	require.NoError(t, placeNoErr(b, book.Order{ID: 2, Side: book.Buy, Kind: book.Limit, Price: tick("10.00"), Qty: 10, TS: 2}))

	away := tick("9.99")
	require.NoError(t, b.Modify(1, nil, &away, 4))
	back := tick("10.00")
	require.NoError(t, b.Modify(1, nil, &back, 5))

	trades, err := b.Place(book.Order{ID: 3, Side: book.Sell, Kind: book.Limit, Price: tick("10.00"), Qty: 10, TS: 6})
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, uint64(2), trades[0].MakerID, "order 2 kept priority; order 1 moved to the tail")
}

func TestModify_SizeDecreaseKeepsPriority(t *testing.T) {
	b := book.New()
	require.NoError(t, placeNoErr(b, book.Order{ID: 1, Side: book.Buy, Kind: book.Limit, Price: tick("10.00"), Qty: 10, TS: 1}))
	require.NoError(t, placeNoErr(b, book.Order{ID: 2, Side: book.Buy, Kind: book.Limit, Price: tick("10.00"), Qty: 10, TS: 2}))

	newQty := uint64(4)
	require.NoError(t, b.Modify(1, &newQty, nil, 5))
	assert.Equal(t, uint64(14), b.TotalRestingQty(book.Buy))

	trades, err := b.Place(book.Order{ID: 3, Side: book.Sell, Kind: book.Limit, Price: tick("10.00"), Qty: 4, TS: 6})
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, uint64(1), trades[0].MakerID, "size decrease must not move the order to the tail")
}

func TestPlace_LimitRestsWhenNonCrossing(t *testing.T) {
	b := book.New()
	trades, err := b.Place(book.Order{ID: 1, Side: book.Buy, Kind: book.Limit, Price: tick("9.00"), Qty: 10, TS: 1})
	require.NoError(t, err)
	assert.Empty(t, trades)

	bid, ok := b.BestBid()
	require.True(t, ok)
	assert.Equal(t, tick("9.00"), bid)
}

func TestPlace_DuplicateIDRejected(t *testing.T) {
	b := book.New()
	require.NoError(t, placeNoErr(b, book.Order{ID: 1, Side: book.Buy, Kind: book.Limit, Price: tick("9.00"), Qty: 10, TS: 1}))

	_, err := b.Place(book.Order{ID: 1, Side: book.Buy, Kind: book.Limit, Price: tick("9.00"), Qty: 5, TS: 2})
	assert.ErrorIs(t, err, book.ErrDuplicateID)
}

func TestPlace_InvalidInputsRejected(t *testing.T) {
	b := book.New()

	_, err := b.Place(book.Order{ID: 1, Side: book.Buy, Kind: book.Limit, Price: tick("1.00"), Qty: 0, TS: 1})
	assert.ErrorIs(t, err, book.ErrInvalidQty)

	_, err = b.Place(book.Order{ID: 2, Side: book.Buy, Kind: book.Limit, Price: 0, Qty: 10, TS: 1})
	assert.ErrorIs(t, err, book.ErrInvalidPrice)
}

func TestInvariant_SpreadNeverNegativeAfterMatching(t *testing.T) {
	b := book.New()
	require.NoError(t, placeNoErr(b, book.Order{ID: 1, Side: book.Buy, Kind: book.Limit, Price: tick("10.00"), Qty: 10, TS: 1}))
	require.NoError(t, placeNoErr(b, book.Order{ID: 2, Side: book.Sell, Kind: book.Limit, Price: tick("10.50"), Qty: 10, TS: 2}))

	// A crossing limit order must match immediately rather than leave a
	// locked or crossed book.
	_, err := b.Place(book.Order{ID: 3, Side: book.Buy, Kind: book.Limit, Price: tick("10.50"), Qty: 5, TS: 3})
	require.NoError(t, err)

	spread, ok := b.Spread()
	if ok {
		assert.GreaterOrEqual(t, spread, int64(0))
	}
}

func placeNoErr(b *book.OrderBook, o book.Order) error {
	_, err := b.Place(o)
	return err
}
