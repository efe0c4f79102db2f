package datasource_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wessimpson/lobsim/internal/datasource"
	"github.com/wessimpson/lobsim/internal/events"
	"github.com/wessimpson/lobsim/internal/price"
)

// fakeClock never actually sleeps, so playback-timing tests run instantly
// while still exercising the anchor/speed/pause bookkeeping.
type fakeClock struct{ now int64 }

func (f *fakeClock) NowNS() int64         { return f.now }
func (f *fakeClock) Sleep(d time.Duration) { f.now += int64(d) }

func writeTemp(t *testing.T, pattern, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), pattern)
	require.NoError(t, err)
	_, err = f.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	return f.Name()
}

const csvSample = `type,f1,f2,f3,f4,f5
trade,1000,50.0000,100,buy,
order,2000,7,sell,25,49.5000,limit
cancel,3000,7,
quote,4000,49.0000,49.5000,10,20
status,5000,halted,circuit breaker
bbo,6000,49.1000,49.4000,5,5
modify,7000,7,30,49.6000
`

func TestCSVSource_ReadsAllVariants(t *testing.T) {
	path := writeTemp(t, "*.csv", csvSample)
	src, err := datasource.NewCSVSource(path, &fakeClock{})
	require.NoError(t, err)
	require.NoError(t, src.SetPlaybackSpeed(1000))

	var kinds []events.Kind
	for {
		ev, err := src.NextEvent()
		require.NoError(t, err)
		if ev == nil {
			break
		}
		kinds = append(kinds, ev.Kind())
	}
	assert.Equal(t, []events.Kind{
		events.KindTrade, events.KindOrderPlacement, events.KindOrderCancellation,
		events.KindQuote, events.KindMarketStatus, events.KindBestBidOffer,
		events.KindOrderModification,
	}, kinds)
	assert.True(t, src.IsFinished())
}

func TestCSVSource_ValidationFailureDoesNotAdvance(t *testing.T) {
	// zero price on a trade record is a validation error per spec.
	content := "type,f1,f2,f3,f4\ntrade,1000,0,100,buy\ntrade,2000,10.0000,5,sell\n"
	path := writeTemp(t, "*.csv", content)
	src, err := datasource.NewCSVSource(path, &fakeClock{})
	require.NoError(t, err)
	require.NoError(t, src.SetPlaybackSpeed(1000))

	_, err = src.NextEvent()
	require.Error(t, err)
	de, ok := datasource.AsDataError(err)
	require.True(t, ok)
	assert.Equal(t, datasource.ErrKindValidation, de.Kind)

	// Retrying re-surfaces the same bad record rather than silently
	// skipping it.
	_, err = src.NextEvent()
	require.Error(t, err)
}

func TestCSVSource_SeekToTime(t *testing.T) {
	path := writeTemp(t, "*.csv", csvSample)
	src, err := datasource.NewCSVSource(path, &fakeClock{})
	require.NoError(t, err)
	require.NoError(t, src.SetPlaybackSpeed(1000))

	require.NoError(t, src.SeekToTime(4000))
	ev, err := src.NextEvent()
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, int64(4000), ev.Timestamp())

	err = src.SeekToTime(999999)
	require.Error(t, err)
	de, ok := datasource.AsDataError(err)
	require.True(t, ok)
	assert.Equal(t, datasource.ErrKindSeek, de.Kind)
}

func TestJSONLSource_RoundTripsTrade(t *testing.T) {
	content := `{"type":"trade","ts":1000,"price":"50.0000","qty":100,"side":"buy"}` + "\n"
	path := writeTemp(t, "*.jsonl", content)
	src, err := datasource.NewJSONLSource(path, &fakeClock{})
	require.NoError(t, err)
	require.NoError(t, src.SetPlaybackSpeed(1000))

	ev, err := src.NextEvent()
	require.NoError(t, err)
	require.NotNil(t, ev)
	trade, ok := ev.(events.TradeEvent)
	require.True(t, ok)
	assert.Equal(t, uint64(100), trade.Qty)

	ev, err = src.NextEvent()
	require.NoError(t, err)
	assert.Nil(t, ev)
	assert.True(t, src.IsFinished())
}

func TestBinarySource_WriteThenRead(t *testing.T) {
	path := t.TempDir() + "/events.bin"
	evs := []events.Event{
		events.TradeEvent{TS: 1000, Price: mustTick("50.0000"), Qty: 100, Side: 0},
		events.OrderCancellationEvent{TS: 2000, OrderID: 5},
	}
	require.NoError(t, datasource.WriteBinaryFile(path, evs))

	src, err := datasource.NewBinarySource(path, &fakeClock{})
	require.NoError(t, err)
	require.NoError(t, src.SetPlaybackSpeed(1000))

	meta := src.Metadata()
	require.NotNil(t, meta.EventCount)
	assert.Equal(t, 2, *meta.EventCount)

	ev1, err := src.NextEvent()
	require.NoError(t, err)
	assert.Equal(t, events.KindTrade, ev1.Kind())

	ev2, err := src.NextEvent()
	require.NoError(t, err)
	assert.Equal(t, events.KindOrderCancellation, ev2.Kind())

	ev3, err := src.NextEvent()
	require.NoError(t, err)
	assert.Nil(t, ev3)
}

func TestBinarySource_ValidationFailureDoesNotAdvance(t *testing.T) {
	path := t.TempDir() + "/events.bin"
	evs := []events.Event{
		events.TradeEvent{TS: 1000, Price: 0, Qty: 100, Side: 0}, // invalid price
		events.TradeEvent{TS: 2000, Price: mustTick("10.0000"), Qty: 5, Side: 1},
	}
	require.NoError(t, datasource.WriteBinaryFile(path, evs))

	src, err := datasource.NewBinarySource(path, &fakeClock{})
	require.NoError(t, err)
	require.NoError(t, src.SetPlaybackSpeed(1000))

	_, err = src.NextEvent()
	require.Error(t, err)
	de, ok := datasource.AsDataError(err)
	require.True(t, ok)
	assert.Equal(t, datasource.ErrKindValidation, de.Kind)

	// Retrying re-surfaces the same bad record rather than silently
	// skipping to the next one.
	_, err = src.NextEvent()
	require.Error(t, err)
	de, ok = datasource.AsDataError(err)
	require.True(t, ok)
	assert.Equal(t, datasource.ErrKindValidation, de.Kind)
}

func mustTick(s string) price.Ticks {
	t, err := price.FromDecimalString(s)
	if err != nil {
		panic(err)
	}
	return t
}
