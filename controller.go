package potfand

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mdouchement/logger"
	"github.com/mdouchement/potfand/mcp4xxx"
)

// A Controller owns the hardware. Every fan and device operation runs on its
// event loop, whatever its origin (HTTP, MQTT or temperature curves).
type Controller struct {
	hw       *Hardware
	sensor   Sensor
	shaper   *CurveShaper
	remote   *MQTT
	events   chan event
	done     chan struct{}
	listener net.Listener
	polling  time.Duration
	fans     map[string]FanSetting
	watchers map[int64]chan<- []byte
	active   map[string]Evaluation
	pending  map[string]Evaluation
	log      logger.Logger
}

// New returns a controller listening on the configured unix socket.
// sensor and shaper are optional, without them fans are only driven remotely.
func New(cfg Config, hw *Hardware, sensor Sensor, shaper *CurveShaper) (*Controller, error) {
	c := newController(cfg, hw, sensor, shaper)

	err := os.MkdirAll(filepath.Dir(cfg.Socket), 0o755)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}

	if _, err := os.Stat(cfg.Socket); err == nil {
		fmt.Printf("Removing existing %s\n", cfg.Socket)
		os.Remove(cfg.Socket)
	}
	c.listener, err = net.Listen("unix", cfg.Socket)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}

	return c, nil
}

func newController(cfg Config, hw *Hardware, sensor Sensor, shaper *CurveShaper) *Controller {
	c := &Controller{
		hw:       hw,
		sensor:   sensor,
		shaper:   shaper,
		events:   make(chan event, 10),
		done:     make(chan struct{}),
		polling:  cfg.Polling.Duration,
		fans:     make(map[string]FanSetting),
		watchers: make(map[int64]chan<- []byte),
		active:   make(map[string]Evaluation),
		pending:  make(map[string]Evaluation),
	}
	if c.polling <= 0 {
		c.polling = defaultPolling
	}

	for _, fan := range cfg.FanSettings {
		c.fans[fan.Name] = *fan
	}

	for _, fan := range hw.Fans {
		fan.SetPublisher(PublisherFunc(c.publish))
	}

	return c
}

// SetRemote publishes fan states on the broker and accepts its commands.
func (c *Controller) SetRemote(m *MQTT) {
	c.remote = m
}

func (c *Controller) Launch(ctx context.Context) {
	log := logger.LogWith(ctx)
	c.log = log

	go c.eventLoop(ctx)

	if c.sensor != nil && c.shaper != nil {
		go c.gatherTemperatures(ctx, log)
	}

	if c.remote != nil {
		err := c.remote.Subscribe(func(fan string, call FanCall) {
			c.send(event{name: eventControl, target: fan, call: call})
		})
		if err != nil {
			log.WithError(err).Error("[mqtt] Could not subscribe to fan commands")
		}
	}

	srv := &http.Server{
		Handler:           c.router(log),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("Starting HTTP server on", c.listener.Addr().String())
		err := srv.Serve(c.listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("Could not serve HTTP")
		}
	}()

	go func() {
		<-ctx.Done()

		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if err := srv.Shutdown(sctx); err != nil {
			log.WithError(err).Error("Could not shutdown HTTP server")
		}
		if err := os.Remove(c.listener.Addr().String()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			// Closing the listener should remove the socket but ceinture et bretelles!
			log.WithError(err).Errorf("Could not remove socket %s", c.listener.Addr().String())
		}
	}()
}

func (c *Controller) eventLoop(ctx context.Context) {
	defer close(c.done)

	for {
		select {
		case <-ctx.Done():
			for id, watcher := range c.watchers {
				close(watcher)
				delete(c.watchers, id)
			}
			return
		case e := <-c.events:
			c.handle(e)
		}
	}
}

func (c *Controller) handle(e event) {
	switch e.name {
	case eventControl:
		fan, ok := c.hw.Fans[e.target]
		if !ok {
			e.respond(FanState{Name: e.target}, fmt.Errorf("fan %s: %w", e.target, ErrNotFound))
			return
		}

		err := fan.Control(e.call)
		if err != nil && e.reply == nil {
			c.log.WithError(err).Errorf("[%s] Could not apply remote command", e.target)
		}
		e.respond(fan.State(), err)

	case eventDevice:
		value, err := c.device(e)
		e.respond(value, err)

	case eventStates:
		e.respond(c.hw.States(), nil)

	case eventDiagnostics:
		e.respond(c.hw.Diagnostics(), nil)

	case eventEval:
		c.apply(e.evals)

	case eventWatch:
		c.watchers[e.monitorID] = e.monitor
		c.broadcast()

	case eventUnwatch:
		if watcher, ok := c.watchers[e.monitorID]; ok {
			close(watcher)
			delete(c.watchers, e.monitorID)
		}
	}
}

func (c *Controller) device(e event) (uint8, error) {
	pot, ok := c.hw.Potentiometers[e.target]
	if !ok {
		return 0, fmt.Errorf("device %s: %w", e.target, ErrNotFound)
	}

	switch e.op {
	case DeviceWrite:
		return pot.Control(e.value)
	case DeviceIncrement:
		return pot.Increment()
	case DeviceDecrement:
		return pot.Decrement()
	case DeviceRead:
		return pot.Read()
	}

	return 0, fmt.Errorf("%s: %w", e.op, ErrUnsupportedOp)
}

// apply controls the fans whose level changed, once the configured step
// delay elapsed.
func (c *Controller) apply(evals map[string]Evaluation) {
	for name, eval := range evals {
		fan, ok := c.hw.Fans[name]
		if !ok {
			continue
		}

		sa, ok := c.active[name]
		if ok {
			if eval.Level == sa.Level {
				// No change, just reset everything.
				delete(c.pending, name)
				continue
			}

			d := c.fans[name].FanStepUp.Duration
			if eval.Level < sa.Level {
				d = c.fans[name].FanStepDown.Duration
			}

			// Do we need to await certain time before updating the speed?
			if d > 0 {
				sp, ok := c.pending[name]
				if !ok {
					// First change, store for later
					c.pending[name] = eval
					continue
				}

				if eval.EvaluedAt.Sub(sp.EvaluedAt) < d {
					continue
				}

				delete(c.pending, name)
			}
		}

		c.active[name] = eval

		c.log.Infof("[%s] Set speed level %d on %s of %.0f°C", name, eval.Level, strconv.Quote(eval.TemperatureName), eval.Temperature)
		err := fan.Control(FanCall{
			State: ToPtr(eval.Level > 0),
			Speed: ToPtr(eval.Level),
		})
		if err != nil {
			c.log.WithError(err).Errorf("[%s] Could not set speed level %d", name, eval.Level)
		}
	}
}

// publish runs on the event loop, fans call it after every control.
func (c *Controller) publish(state FanState) {
	c.broadcast()

	if c.remote != nil {
		c.remote.Publish(state)
	}
}

func (c *Controller) broadcast() {
	if len(c.watchers) == 0 {
		return
	}

	payload, err := json.Marshal(c.hw.States())
	if err != nil {
		c.log.WithError(err).Error("Could not serialize fan states") // Should never happen
		return
	}

	for id, watcher := range c.watchers {
		select {
		case watcher <- payload:
		default:
			c.log.Warnf("Monitor %d is too slow, dropping fan states", id)
		}
	}
}

func (c *Controller) gatherTemperatures(ctx context.Context, log logger.Logger) {
	ticker := time.NewTicker(c.polling)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			temps, err := c.sensor.Temperatures()
			if err != nil {
				log.WithError(err).Error("Could not read temperature sensors")
				if len(temps) == 0 {
					continue
				}
			}

			c.send(event{name: eventEval, evals: c.shaper.Eval(temps)})
		}
	}
}

// send queues the event, it reports false once the event loop is gone.
func (c *Controller) send(e event) bool {
	select {
	case c.events <- e:
		return true
	case <-c.done:
		return false
	}
}

// request runs the event on the event loop and waits for its outcome.
func (c *Controller) request(ctx context.Context, e event) (any, error) {
	ch := make(chan reply, 1)
	e.reply = ch

	select {
	case c.events <- e:
	case <-c.done:
		return nil, ErrShutdown
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case r := <-ch:
		return r.value, r.err
	case <-c.done:
		// Queued right before the event loop stopped.
		return nil, ErrShutdown
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

//
// HTTP
//

func (c *Controller) router(log logger.Logger) http.Handler {
	r := chi.NewRouter()
	r.Get("/monitor", c.monitor(log))
	r.Get("/fans", c.listFans)
	r.Post("/fans/{name}", c.controlFan)
	r.Get("/diagnostics", c.diagnostics)
	r.Post("/devices/{name}/{op}", c.deviceOp)

	return r
}

func (c *Controller) listFans(w http.ResponseWriter, r *http.Request) {
	states, err := c.request(r.Context(), event{name: eventStates})
	if err != nil {
		render(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}

	render(w, http.StatusOK, states)
}

func (c *Controller) diagnostics(w http.ResponseWriter, r *http.Request) {
	d, err := c.request(r.Context(), event{name: eventDiagnostics})
	if err != nil {
		render(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}

	render(w, http.StatusOK, d)
}

func (c *Controller) controlFan(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var call FanCall
	if err := json.NewDecoder(r.Body).Decode(&call); err != nil {
		render(w, http.StatusBadRequest, FanResult{FanState: FanState{Name: name}, Error: err.Error()})
		return
	}

	v, err := c.request(r.Context(), event{name: eventControl, target: name, call: call})

	var result FanResult
	if state, ok := v.(FanState); ok {
		result.FanState = state
	}
	if err != nil {
		result.Error = err.Error()
	}

	render(w, status(err), result)
}

func (c *Controller) deviceOp(w http.ResponseWriter, r *http.Request) {
	e := event{
		name:   eventDevice,
		target: chi.URLParam(r, "name"),
		op:     chi.URLParam(r, "op"),
	}

	if e.op == DeviceWrite {
		var call DeviceCall
		if err := json.NewDecoder(r.Body).Decode(&call); err != nil {
			render(w, http.StatusBadRequest, DeviceResult{Name: e.target, Error: err.Error()})
			return
		}
		e.value = call.Value
	}

	v, err := c.request(r.Context(), e)

	result := DeviceResult{Name: e.target}
	if value, ok := v.(uint8); ok {
		result.Value = value
	}
	if err != nil {
		result.Error = err.Error()
	}

	render(w, status(err), result)
}

func (c *Controller) monitor(log logger.Logger) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		log.Info("Client connected")

		// Set http headers required for SSE.
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		disconnected := r.Context().Done()

		id := genID()
		ch := make(chan []byte, 20)
		if !c.send(event{name: eventWatch, monitorID: id, monitor: ch}) {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		rc := http.NewResponseController(w)
		for {
			select {
			case <-disconnected:
				log.Info("Client disconnected")
				c.send(event{name: eventUnwatch, monitorID: id})
				return
			case payload, ok := <-ch:
				if !ok {
					return // Shutdown
				}

				err := WriteSSE(w, payload)
				if err != nil {
					log.WithError(err).Error("Could not write monitor SSE payload")
					c.send(event{name: eventUnwatch, monitorID: id})
					return
				}

				err = rc.Flush()
				if err != nil {
					log.WithError(err).Error("Could not flush monitor SSE payload")
					c.send(event{name: eventUnwatch, monitorID: id})
					return
				}
			}
		}
	}
}

func status(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnsupportedOp):
		return http.StatusBadRequest
	case errors.Is(err, ErrOwned), errors.Is(err, mcp4xxx.ErrAtBound):
		return http.StatusConflict
	case errors.Is(err, ErrFailed), errors.Is(err, ErrShutdown):
		return http.StatusServiceUnavailable
	case errors.Is(err, mcp4xxx.ErrTransport), errors.Is(err, mcp4xxx.ErrIntegrity):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func render(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
