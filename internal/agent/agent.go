// Package agent implements the frame agents: one goroutine per frame that
// locates the page image, rasterizes it on request, announces readiness
// and relays broadcasts one hop down to its own child frames.
//
// Agents share nothing with each other or with the orchestrator. Every
// exchange is an encoded message posted on a Port.
package agent

import (
	"context"
	"sync"
	"time"

	"github.com/porticus-lab/go-pagecap/internal/protocol"
)

// Host owns the agents of one browser tab. At most one agent runs per
// frame ID.
type Host struct {
	cfg Config
	up  Port

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	agents map[string]*Agent
	closed bool
}

// NewHost creates a Host whose agents post their answers and announcements
// to up.
func NewHost(up Port, cfg Config) *Host {
	cfg.defaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Host{
		cfg:    cfg,
		up:     up,
		ctx:    ctx,
		cancel: cancel,
		agents: make(map[string]*Agent),
	}
}

// Attach returns the inbox of the agent bound to f, starting one if the
// frame has none yet or its previous agent stopped.
func (h *Host) Attach(f Frame) Port {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return PortFunc(func([]byte) error { return ErrDetached })
	}
	if a, ok := h.agents[f.ID()]; ok && !a.stopped() {
		return a
	}

	a := &Agent{
		host:   h,
		frame:  f,
		inbox:  make(chan []byte, h.cfg.InboxSize),
		reload: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	h.agents[f.ID()] = a
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		a.run(h.ctx)
	}()
	h.cfg.Logger.Debug("agent: attached", "frame", f.ID())
	return a
}

// Relay forwards data to every child of f. Unreachable children are
// skipped so one detached frame never blocks delivery to the others. It
// returns the number of children that accepted the message.
func (h *Host) Relay(ctx context.Context, f Frame, data []byte) int {
	ctx, cancel := context.WithTimeout(ctx, h.cfg.RelayTimeout)
	defer cancel()

	children, err := f.Children(ctx)
	if err != nil {
		h.cfg.Logger.Debug("agent: list children failed", "frame", f.ID(), "error", err)
		return 0
	}

	delivered := 0
	for _, c := range children {
		if err := h.Attach(c).Post(data); err != nil {
			h.cfg.Logger.Debug("agent: relay dropped", "from", f.ID(), "to", c.ID(), "error", err)
			continue
		}
		delivered++
	}
	return delivered
}

// Reload restarts the announcement schedule of the agent bound to frame id,
// as happens when the frame navigates. It reports whether such an agent
// exists.
func (h *Host) Reload(id string) bool {
	h.mu.Lock()
	a, ok := h.agents[id]
	h.mu.Unlock()
	if !ok || a.stopped() {
		return false
	}
	select {
	case a.reload <- struct{}{}:
	default:
	}
	return true
}

// Len returns the number of running agents.
func (h *Host) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, a := range h.agents {
		if !a.stopped() {
			n++
		}
	}
	return n
}

// Close stops every agent and waits for them to exit.
func (h *Host) Close() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	h.cancel()
	h.wg.Wait()
}

// Agent serves one frame. It handles one message at a time.
type Agent struct {
	host   *Host
	frame  Frame
	inbox  chan []byte
	reload chan struct{}
	done   chan struct{}
}

// Post queues data for the agent.
func (a *Agent) Post(data []byte) error {
	if a.stopped() {
		return ErrDetached
	}
	select {
	case a.inbox <- data:
		return nil
	default:
		return ErrInboxFull
	}
}

func (a *Agent) stopped() bool {
	select {
	case <-a.done:
		return true
	default:
		return false
	}
}

func (a *Agent) run(ctx context.Context) {
	defer close(a.done)

	sched := newSchedule(a.host.cfg.AnnounceDelays)
	defer sched.stop()
	ready, stopWatch := a.watchReady(ctx)
	defer func() { stopWatch() }()

	for {
		select {
		case <-ctx.Done():
			return
		case data := <-a.inbox:
			a.handle(ctx, data)
		case <-sched.C():
			a.announce(ctx)
			sched.advance()
		case <-ready:
			ready = nil
			stopWatch()
			a.announce(ctx)
		case <-a.reload:
			stopWatch()
			sched.restart()
			ready, stopWatch = a.watchReady(ctx)
		}
	}
}

// watchReady starts one content-ready observation. The returned stop func
// ends it; at most one observation per agent is live at a time.
func (a *Agent) watchReady(ctx context.Context) (<-chan struct{}, context.CancelFunc) {
	rn, ok := a.frame.(ReadyNotifier)
	if !ok {
		return nil, func() {}
	}
	wctx, cancel := context.WithCancel(ctx)
	ch := make(chan struct{}, 1)
	go func() {
		if err := rn.WaitContentReady(wctx); err == nil {
			ch <- struct{}{}
		}
	}()
	return ch, cancel
}

func (a *Agent) handle(ctx context.Context, data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		a.host.cfg.Logger.Debug("agent: ignored payload", "frame", a.frame.ID(), "error", err)
		return
	}

	switch m := msg.(type) {
	case protocol.Ping:
		a.host.Relay(ctx, a.frame, data)
		if a.locate(ctx) == nil {
			return
		}
		a.send(protocol.PingAck{RequestID: m.RequestID, HasImage: true, FrameURL: a.url(ctx)})

	case protocol.CaptureRequest:
		a.host.Relay(ctx, a.frame, data)
		img := a.locate(ctx)
		if img == nil {
			return
		}
		a.send(a.capture(ctx, m.RequestID, img))
	}
}

func (a *Agent) capture(ctx context.Context, id string, img Image) protocol.CaptureResponse {
	resp := protocol.CaptureResponse{RequestID: id, FrameURL: a.url(ctx)}
	r, err := Rasterize(ctx, img, a.host.cfg)
	if err != nil {
		a.host.cfg.Logger.Warn("agent: capture failed", "frame", a.frame.ID(), "error", err)
		resp.Error = err.Error()
		return resp
	}
	resp.Success = true
	resp.Width, resp.Height, resp.ImageData = r.Width, r.Height, r.Data
	return resp
}

func (a *Agent) announce(ctx context.Context) {
	a.send(protocol.ReadyAnnouncement{
		HasImage: a.locate(ctx) != nil,
		FrameURL: a.url(ctx),
	})
}

func (a *Agent) locate(ctx context.Context) Image {
	return Locate(ctx, a.frame, a.host.cfg.ImageID, a.host.cfg.MinDimension)
}

func (a *Agent) url(ctx context.Context) string {
	u, err := a.frame.URL(ctx)
	if err != nil {
		return ""
	}
	return u
}

func (a *Agent) send(m protocol.Message) {
	data, err := protocol.Encode(m)
	if err == nil {
		err = a.host.up.Post(data)
	}
	if err != nil {
		a.host.cfg.Logger.Debug("agent: post failed", "frame", a.frame.ID(), "type", m.Type(), "error", err)
	}
}

// schedule fires once per delay, each delay measured from the last
// (re)start.
type schedule struct {
	delays []time.Duration
	start  time.Time
	i      int
	timer  *time.Timer
}

func newSchedule(delays []time.Duration) *schedule {
	s := &schedule{delays: delays}
	s.restart()
	return s
}

func (s *schedule) restart() {
	s.stop()
	s.start = time.Now()
	s.i = 0
	s.arm()
}

func (s *schedule) advance() {
	s.i++
	s.arm()
}

func (s *schedule) arm() {
	if s.i >= len(s.delays) {
		s.timer = nil
		return
	}
	d := time.Until(s.start.Add(s.delays[s.i]))
	if d < 0 {
		d = 0
	}
	s.timer = time.NewTimer(d)
}

// C returns nil once the schedule is exhausted, which blocks forever in a
// select.
func (s *schedule) C() <-chan time.Time {
	if s.timer == nil {
		return nil
	}
	return s.timer.C
}

func (s *schedule) stop() {
	if s.timer != nil {
		s.timer.Stop()
	}
}
