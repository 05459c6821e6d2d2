package potfand

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func launch(t *testing.T) (*Controller, *httptest.Server, context.CancelFunc) {
	t.Helper()

	cfg, hw := openHardware(t, hardwareConfig)
	require.NoError(t, hw.Setup())

	c := newController(cfg, hw, nil, nil)
	c.log = testLogger()

	ctx, cancel := context.WithCancel(context.Background())
	go c.eventLoop(ctx)

	srv := httptest.NewServer(c.router(c.log))
	t.Cleanup(func() {
		cancel() // Releases the monitors
		srv.Close()
	})

	return c, srv, cancel
}

func post(t *testing.T, url string, body any, result any) int {
	t.Helper()

	p, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(url, "application/json", bytes.NewReader(p))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.NoError(t, json.NewDecoder(resp.Body).Decode(result))
	return resp.StatusCode
}

func TestControllerFans(t *testing.T) {
	_, srv, _ := launch(t)

	resp, err := http.Get(srv.URL + "/fans")
	require.NoError(t, err)
	defer resp.Body.Close()

	var states []FanState
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&states))
	assert.Equal(t, []FanState{{Name: "front", Label: "Front"}}, states)

	var result FanResult
	code := post(t, srv.URL+"/fans/front", FanCall{State: ToPtr(true), Speed: ToPtr(3)}, &result)
	assert.Equal(t, http.StatusOK, code)
	assert.Empty(t, result.Error)
	assert.Equal(t, FanState{Name: "front", Label: "Front", On: true, Speed: 3, Wiper: 96}, result.FanState)

	code = post(t, srv.URL+"/fans/nope", FanCall{Speed: ToPtr(1)}, &result)
	assert.Equal(t, http.StatusNotFound, code)
	assert.NotEmpty(t, result.Error)
}

func TestControllerFanBadRequest(t *testing.T) {
	_, srv, _ := launch(t)

	resp, err := http.Post(srv.URL+"/fans/front", "application/json", bytes.NewBufferString("{"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestControllerDevices(t *testing.T) {
	_, srv, _ := launch(t)

	var result DeviceResult

	code := post(t, srv.URL+"/devices/intake/write", DeviceCall{Value: 10}, &result)
	assert.Equal(t, http.StatusConflict, code, "owned by a fan")
	assert.Contains(t, result.Error, "front")

	code = post(t, srv.URL+"/devices/spare/write", DeviceCall{Value: 42.5}, &result)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, DeviceResult{Name: "spare", Value: 42}, result)

	code = post(t, srv.URL+"/devices/spare/increment", nil, &result)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, uint8(43), result.Value)

	code = post(t, srv.URL+"/devices/spare/read", nil, &result)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, uint8(43), result.Value)

	code = post(t, srv.URL+"/devices/spare/write", DeviceCall{Value: 0}, &result)
	assert.Equal(t, http.StatusOK, code)
	code = post(t, srv.URL+"/devices/spare/decrement", nil, &result)
	assert.Equal(t, http.StatusConflict, code, "already at the bound")
	assert.Equal(t, uint8(0), result.Value)

	code = post(t, srv.URL+"/devices/spare/reset", nil, &result)
	assert.Equal(t, http.StatusBadRequest, code)

	code = post(t, srv.URL+"/devices/nope/read", nil, &result)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestControllerDiagnostics(t *testing.T) {
	_, srv, _ := launch(t)

	resp, err := http.Get(srv.URL + "/diagnostics")
	require.NoError(t, err)
	defer resp.Body.Close()

	var d Diagnostics
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&d))
	require.Len(t, d.Devices, 2)
	require.Len(t, d.Fans, 1)
	assert.Equal(t, "front", d.Devices[0].Owner)
	assert.Equal(t, "front", d.Fans[0].Name)
	assert.Equal(t, "Front", d.Fans[0].Label)
}

func TestControllerMonitor(t *testing.T) {
	_, srv, _ := launch(t)

	resp, err := http.Get(srv.URL + "/monitor")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	r := NewSSEReader(resp.Body)
	next := func() []FanState {
		event, err := r.Next()
		require.NoError(t, err)

		var states []FanState
		require.NoError(t, json.Unmarshal(event, &states))
		return states
	}

	assert.Equal(t, []FanState{{Name: "front", Label: "Front"}}, next())

	var result FanResult
	post(t, srv.URL+"/fans/front", FanCall{Speed: ToPtr(4)}, &result)
	assert.Equal(t, []FanState{{Name: "front", Label: "Front", Speed: 4, Wiper: 128}}, next())
}

func TestControllerRemoteCommand(t *testing.T) {
	c, _, _ := launch(t)

	require.True(t, c.send(event{name: eventControl, target: "front", call: FanCall{State: ToPtr(true)}}))
	require.True(t, c.send(event{name: eventControl, target: "nope", call: FanCall{State: ToPtr(true)}}))

	// Events are handled in order.
	v, err := c.request(context.Background(), event{name: eventStates})
	require.NoError(t, err)
	assert.Equal(t, []FanState{{Name: "front", Label: "Front", On: true}}, v)
}

func TestControllerShutdown(t *testing.T) {
	c, _, cancel := launch(t)
	cancel()

	select {
	case <-c.done:
	case <-time.After(time.Second):
		t.Fatal("event loop still running")
	}

	_, err := c.request(context.Background(), event{name: eventStates})
	require.ErrorIs(t, err, ErrShutdown)
	assert.False(t, c.send(event{name: eventStates}))
}

func TestControllerShutdownWithQueuedRequest(t *testing.T) {
	cfg, hw := openHardware(t, hardwareConfig)
	require.NoError(t, hw.Setup())

	c := newController(cfg, hw, nil, nil)
	c.log = testLogger()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errc := make(chan error, 1)
	go func() {
		_, err := c.request(ctx, event{name: eventStates})
		errc <- err
	}()

	// The event is queued but no loop will ever handle it.
	require.Eventually(t, func() bool { return len(c.events) == 1 }, time.Second, time.Millisecond)
	close(c.done)

	select {
	case err := <-errc:
		require.ErrorIs(t, err, ErrShutdown)
	case <-time.After(time.Second):
		t.Fatal("request still waiting for a reply")
	}
}

func TestControllerApplyStepDelays(t *testing.T) {
	cfg, hw := openHardware(t, hardwareConfig)
	require.NoError(t, hw.Setup())

	c := newController(cfg, hw, nil, nil)
	c.log = testLogger()
	fan := hw.Fans["front"]

	at := time.Now()
	eval := func(level int, after time.Duration) {
		c.apply(map[string]Evaluation{
			"front":   {Fan: "front", Level: level, EvaluedAt: at.Add(after), TemperatureName: "cpu", Temperature: 50},
			"unknown": {Fan: "unknown", Level: 1, EvaluedAt: at.Add(after)},
		})
	}

	eval(2, 0)
	assert.Equal(t, FanState{Name: "front", Label: "Front", On: true, Speed: 2, Wiper: 64}, fan.State())

	// Stepping down waits for fan_step_down.
	eval(1, time.Second)
	assert.Equal(t, 2, fan.State().Speed)
	eval(1, 5*time.Second)
	assert.Equal(t, 2, fan.State().Speed)
	eval(1, 12*time.Second)
	assert.Equal(t, 1, fan.State().Speed)

	// Stepping up is immediate.
	eval(4, 13*time.Second)
	assert.Equal(t, 4, fan.State().Speed)

	// A level back to the active one cancels the pending change.
	eval(0, 14*time.Second)
	eval(4, 15*time.Second)
	assert.Empty(t, c.pending)
	eval(0, 20*time.Second)
	assert.Equal(t, 4, fan.State().Speed)
	eval(0, 31*time.Second)
	assert.Equal(t, FanState{Name: "front", Label: "Front"}, fan.State())
}
