package control_test

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wessimpson/lobsim/internal/book"
	"github.com/wessimpson/lobsim/internal/control"
	"github.com/wessimpson/lobsim/internal/driver"
)

type fakeEngine struct {
	health      driver.Health
	resetCalled bool
	lastSpeed   float64
	lastOrder   book.Order
	placeErr    error
	placeCalled bool
}

func (f *fakeEngine) Health() driver.Health         { return f.health }
func (f *fakeEngine) ResetMetrics()                 { f.resetCalled = true }
func (f *fakeEngine) SetSimulationSpeed(s float64) error {
	f.lastSpeed = s
	return nil
}
func (f *fakeEngine) PlaceOrder(o book.Order) ([]book.Trade, error) {
	f.placeCalled = true
	f.lastOrder = o
	return []book.Trade{{MakerID: 1, TakerID: o.ID, Price: 1, Qty: o.Qty}}, f.placeErr
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func startTestServer(t *testing.T, engine *fakeEngine) (addr string, stop func()) {
	t.Helper()
	port := freePort(t)
	srv := control.New("127.0.0.1", port, engine)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)

	addr = fmt.Sprintf("127.0.0.1:%d", port)
	return addr, func() {
		cancel()
		srv.Shutdown()
		<-done
	}
}

func sendCommand(t *testing.T, addr, cmd string) map[string]any {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte(cmd + "\n"))
	require.NoError(t, err)

	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)

	var resp map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(line)), &resp))
	return resp
}

func TestControlServer_GetHealth(t *testing.T) {
	engine := &fakeEngine{health: driver.Health{Status: driver.StatusHealthy, TotalErrors: 3}}
	addr, stop := startTestServer(t, engine)
	defer stop()

	resp := sendCommand(t, addr, `{"command":"get_health"}`)
	assert.Equal(t, true, resp["ok"])
}

func TestControlServer_ResetMetrics(t *testing.T) {
	engine := &fakeEngine{}
	addr, stop := startTestServer(t, engine)
	defer stop()

	resp := sendCommand(t, addr, `{"command":"reset_metrics"}`)
	assert.Equal(t, true, resp["ok"])
	assert.True(t, engine.resetCalled)
}

func TestControlServer_SetSimulationSpeedRejectsOutOfRange(t *testing.T) {
	engine := &fakeEngine{}
	addr, stop := startTestServer(t, engine)
	defer stop()

	resp := sendCommand(t, addr, `{"command":"set_simulation_speed","speed":150}`)
	assert.Equal(t, false, resp["ok"])
}

func TestControlServer_PlaceTestOrderMarket(t *testing.T) {
	engine := &fakeEngine{}
	addr, stop := startTestServer(t, engine)
	defer stop()

	resp := sendCommand(t, addr, `{"command":"place_test_order","side":"buy","qty":10}`)
	assert.Equal(t, true, resp["ok"])
	assert.True(t, engine.placeCalled)
	assert.Equal(t, book.Market, engine.lastOrder.Kind)
}

func TestControlServer_UnknownCommand(t *testing.T) {
	engine := &fakeEngine{}
	addr, stop := startTestServer(t, engine)
	defer stop()

	resp := sendCommand(t, addr, `{"command":"not_a_real_command"}`)
	assert.Equal(t, false, resp["ok"])
}
