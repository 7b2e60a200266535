package reactor

import (
	"container/heap"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-reactor/dispatch"
	"github.com/joeycumines/go-reactor/internal/corelog"
	"github.com/joeycumines/go-reactor/result"
	"github.com/joeycumines/go-reactor/task"
	"golang.org/x/sys/unix"
)

// Config configures a Manager. An explicit Dispatcher instance takes
// precedence over DispatcherType.
type Config struct {
	MinPollers int        // default 1
	MaxPollers int        // default == MinPollers
	PollerType PollerType // default: the platform backend

	Dispatcher           dispatch.Dispatcher
	DispatcherType       dispatch.Type
	DispatcherMinWorkers int
	DispatcherMaxWorkers int // default: num cores
}

// Manager composes exactly one Poller and one Dispatcher and owns an
// internal non-blocking event pipe: signal fan-outs and generic Fire calls
// append Data records to an in-memory FIFO and write a wake byte, and
// whichever poll loop observes the pipe readable drains and delivers
// them. SetTimeout/SetDeadline feed a deadline-ordered heap serviced by a
// dedicated timer goroutine that calls Task.Expire on fire.
type Manager struct {
	poller         Poller
	dispatcher     dispatch.Dispatcher
	ownsDispatcher bool

	minPollers, maxPollers int

	mu            sync.Mutex
	registrations map[Token]*Registration
	fdTokens      map[int][]Token
	signalTokens  map[int][]Token

	pendingMu     sync.Mutex
	pendingEvents []Data

	pipeR, pipeW int

	timerMu sync.Mutex
	timers  timerHeap
	timerCh chan struct{}

	running  bool
	shutdown atomic.Bool
	wg       sync.WaitGroup
	stopCh   chan struct{}
}

// New constructs a Manager bound to a fresh Poller of cfg.PollerType and
// the given Dispatcher (or, if cfg.Dispatcher is nil, one selected by
// cfg.DispatcherType, which defaults to Threaded).
func New(cfg Config) (*Manager, error) {
	if cfg.MinPollers <= 0 {
		cfg.MinPollers = 1
	}
	if cfg.MaxPollers < cfg.MinPollers {
		cfg.MaxPollers = cfg.MinPollers
	}
	// The shared System dispatcher outlives any one Manager; every other
	// dispatcher is shut down with the Manager that drives it.
	d := cfg.Dispatcher
	ownsDispatcher := true
	if d == nil {
		d = dispatch.NewOfType(cfg.DispatcherType, cfg.DispatcherMinWorkers, cfg.DispatcherMaxWorkers)
		ownsDispatcher = cfg.DispatcherType != dispatch.TypeSystem
	}

	poller, err := NewOfType(cfg.PollerType)
	if err != nil {
		return nil, err
	}

	pipeR, pipeW, err := makeEventPipe()
	if err != nil {
		poller.Close()
		return nil, err
	}

	m := &Manager{
		poller:         poller,
		dispatcher:     d,
		ownsDispatcher: ownsDispatcher,
		minPollers:     cfg.MinPollers,
		maxPollers:     cfg.MaxPollers,
		registrations:  make(map[Token]*Registration),
		fdTokens:       make(map[int][]Token),
		signalTokens:   make(map[int][]Token),
		pipeR:          pipeR,
		pipeW:          pipeW,
		timerCh:        make(chan struct{}, 1),
		stopCh:         make(chan struct{}),
	}

	if r := m.poller.Add(m.pipeR, Readable); r.Failed() {
		_ = unix.Close(m.pipeR)
		_ = unix.Close(m.pipeW)
		_ = poller.Close()
		return nil, r.AsError()
	}

	m.running = true
	m.wg.Add(cfg.MaxPollers + 1)
	for i := 0; i < cfg.MaxPollers; i++ {
		go m.pollLoop(i)
	}
	go m.timerLoop()

	return m, nil
}

// FD registers fd for set, invoking handler on every matching readiness
// event. Multiple registrations on the same fd are unioned in the poller's
// interest set; each registration's handler only fires for the bits it
// subscribed to (or unconditionally on Error/Hangup).
func (m *Manager) FD(fd int, set Set, handler Handler) (Token, result.Result) {
	m.mu.Lock()
	if m.shutdown.Load() {
		m.mu.Unlock()
		return 0, result.New(result.FailedPrecondition, "manager shut down")
	}
	tok := newToken()
	m.registrations[tok] = &Registration{Token: tok, Kind: KindFD, ResID: fd, Set: set, Handler: handler}
	m.fdTokens[fd] = append(m.fdTokens[fd], tok)
	first := len(m.fdTokens[fd]) == 1
	m.mu.Unlock()

	if !first {
		return tok, m.syncFDInterest(fd)
	}
	if r := m.poller.Add(fd, set); r.Failed() {
		m.mu.Lock()
		delete(m.registrations, tok)
		m.fdTokens[fd] = nil
		m.mu.Unlock()
		return 0, r
	}
	return tok, result.Ok()
}

func (m *Manager) syncFDInterest(fd int) result.Result {
	m.mu.Lock()
	var union Set
	for _, tok := range m.fdTokens[fd] {
		if reg, ok := m.registrations[tok]; ok {
			union = union.Union(reg.Set)
		}
	}
	m.mu.Unlock()
	return m.poller.Modify(fd, union)
}

// Signal subscribes handler to signo via the process-wide trampoline.
func (m *Manager) Signal(signo int, handler Handler) (Token, result.Result) {
	m.mu.Lock()
	if m.shutdown.Load() {
		m.mu.Unlock()
		return 0, result.New(result.FailedPrecondition, "manager shut down")
	}
	tok := newToken()
	m.registrations[tok] = &Registration{Token: tok, Kind: KindSignal, ResID: signo, Handler: handler}
	m.signalTokens[signo] = append(m.signalTokens[signo], tok)
	m.mu.Unlock()

	trampoline.subscribe(syscallSignal(signo), m)
	return tok, result.Ok()
}

// Timer registers a handler reachable only via SetTimeout/SetDeadline's
// Task.Expire plumbing; Manager does not call this handler itself. It
// exists so a timer registration has a Token symmetric with the other
// three kinds.
func (m *Manager) Timer(handler Handler) (Token, result.Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shutdown.Load() {
		return 0, result.New(result.FailedPrecondition, "manager shut down")
	}
	tok := newToken()
	m.registrations[tok] = &Registration{Token: tok, Kind: KindTimer, Handler: handler}
	return tok, result.Ok()
}

// Generic registers a handler reachable only via Fire.
func (m *Manager) Generic(handler Handler) (Token, result.Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shutdown.Load() {
		return 0, result.New(result.FailedPrecondition, "manager shut down")
	}
	tok := newToken()
	m.registrations[tok] = &Registration{Token: tok, Kind: KindGeneric, Handler: handler}
	return tok, result.Ok()
}

// Fire posts value onto the event pipe for delivery to tok's generic
// handler on a future poll iteration.
func (m *Manager) Fire(tok Token, value any) result.Result {
	m.mu.Lock()
	reg, ok := m.registrations[tok]
	m.mu.Unlock()
	if !ok || reg.Kind != KindGeneric {
		return result.New(result.InvalidArgument, "unknown generic token")
	}
	m.pendingMu.Lock()
	m.pendingEvents = append(m.pendingEvents, Data{Token: tok, Kind: KindGeneric, Set: Generic, Value: value})
	m.pendingMu.Unlock()
	m.wakePipe()
	return result.Ok()
}

func (m *Manager) wakePipe() {
	for {
		_, err := unix.Write(m.pipeW, []byte{0})
		if err == nil || err == unix.EAGAIN {
			return
		}
		if err == unix.EINTR {
			continue
		}
		return
	}
}

func (m *Manager) deliverSignal(signo int) {
	m.mu.Lock()
	toks := append([]Token(nil), m.signalTokens[signo]...)
	m.mu.Unlock()
	if len(toks) == 0 {
		return
	}
	m.pendingMu.Lock()
	for _, tok := range toks {
		m.pendingEvents = append(m.pendingEvents, Data{Token: tok, Kind: KindSignal, Set: Signal, Signo: signo})
	}
	m.pendingMu.Unlock()
	m.wakePipe()
}

// Modify updates the interest set for an FD registration identified by tok.
func (m *Manager) Modify(tok Token, set Set) result.Result {
	m.mu.Lock()
	reg, ok := m.registrations[tok]
	if !ok {
		m.mu.Unlock()
		return result.New(result.NotFound, "unknown token")
	}
	if reg.Kind != KindFD {
		m.mu.Unlock()
		return result.New(result.InvalidArgument, "token is not an FD registration")
	}
	reg.Set = set
	fd := reg.ResID
	m.mu.Unlock()
	return m.syncFDInterest(fd)
}

// Remove unregisters tok.
func (m *Manager) Remove(tok Token) result.Result {
	m.mu.Lock()
	reg, ok := m.registrations[tok]
	if !ok {
		m.mu.Unlock()
		return result.New(result.NotFound, "unknown token")
	}
	delete(m.registrations, tok)
	switch reg.Kind {
	case KindFD:
		toks := removeToken(m.fdTokens[reg.ResID], tok)
		m.fdTokens[reg.ResID] = toks
		remaining := len(toks)
		m.mu.Unlock()
		if remaining == 0 {
			return m.poller.Remove(reg.ResID)
		}
		return m.syncFDInterest(reg.ResID)
	case KindSignal:
		toks := removeToken(m.signalTokens[reg.ResID], tok)
		m.signalTokens[reg.ResID] = toks
		remaining := len(toks)
		m.mu.Unlock()
		if remaining == 0 {
			trampoline.unsubscribe(syscallSignal(reg.ResID), m)
		}
		return result.Ok()
	default:
		m.mu.Unlock()
		return result.Ok()
	}
}

func removeToken(toks []Token, tok Token) []Token {
	for i, t := range toks {
		if t == tok {
			return append(toks[:i], toks[i+1:]...)
		}
	}
	return toks
}

// SetTimeout arranges for t to Expire after d elapses, unless t finishes or
// is cancelled first.
func (m *Manager) SetTimeout(t *task.Task, d time.Duration) result.Result {
	return m.SetDeadline(t, time.Now().Add(d))
}

// SetDeadline arranges for t to Expire at when, unless t finishes or is
// cancelled first; finishing t for any reason cancels the pending timer.
func (m *Manager) SetDeadline(t *task.Task, when time.Time) result.Result {
	m.timerMu.Lock()
	if m.shutdown.Load() {
		m.timerMu.Unlock()
		return result.New(result.FailedPrecondition, "manager shut down")
	}
	entry := &timerEntry{when: when, task: t}
	heap.Push(&m.timers, entry)
	m.timerMu.Unlock()
	select {
	case m.timerCh <- struct{}{}:
	default:
	}

	t.OnFinished(func(result.Result) {
		m.timerMu.Lock()
		entry.cancelled = true
		m.timerMu.Unlock()
	})
	return result.Ok()
}

func (m *Manager) pollLoop(index int) {
	defer m.wg.Done()
	var out []ReadyFD
	for {
		select {
		case <-m.stopCh:
			return
		default:
		}

		timeout := -1
		if index >= m.minPollers {
			// Mixed mode: donate one unit to the dispatcher, then poll.
			// Donated progress earns a non-blocking poll; otherwise a
			// short timeout keeps this loop from spinning against the
			// pure pollers' blocking waits.
			if m.drainPendingOnce() {
				timeout = 0
			} else {
				timeout = 50
			}
		}

		out = out[:0]
		r := m.poller.Wait(&out, timeout)
		if r.Failed() {
			if r.Code() == result.FailedPrecondition || m.shutdown.Load() {
				return
			}
			corelog.Get().Warning().Str("code", r.Code().String()).Log("reactor: poll wait failed")
			continue
		}
		for _, rd := range out {
			if rd.FD == m.pipeR {
				m.drainEventPipe()
				continue
			}
			m.dispatchFD(rd)
		}
	}
}

func (m *Manager) drainPendingOnce() bool {
	m.pendingMu.Lock()
	if len(m.pendingEvents) == 0 {
		m.pendingMu.Unlock()
		return false
	}
	ev := m.pendingEvents[0]
	m.pendingEvents = m.pendingEvents[1:]
	m.pendingMu.Unlock()
	m.deliver(ev)
	return true
}

func (m *Manager) drainEventPipe() {
	var buf [64]byte
	for {
		_, err := unix.Read(m.pipeR, buf[:])
		if err != nil {
			break
		}
	}
	m.pendingMu.Lock()
	events := m.pendingEvents
	m.pendingEvents = nil
	m.pendingMu.Unlock()
	for _, ev := range events {
		m.deliver(ev)
	}
	if m.shutdown.Load() {
		// Pass the wake along so every other poll loop also observes
		// shutdown; a single sentinel byte would otherwise be consumed by
		// whichever loop drained first.
		m.wakePipe()
	}
}

func (m *Manager) dispatchFD(rd ReadyFD) {
	m.mu.Lock()
	toks := append([]Token(nil), m.fdTokens[rd.FD]...)
	m.mu.Unlock()
	for _, tok := range toks {
		m.mu.Lock()
		reg, ok := m.registrations[tok]
		m.mu.Unlock()
		if !ok {
			continue
		}
		if reg.Set.Intersect(rd.Set) == 0 && rd.Set.Intersect(Error|Hangup) == 0 {
			continue
		}
		data := Data{Token: tok, Kind: KindFD, FD: rd.FD, Set: rd.Set}
		handler := reg.Handler
		m.dispatcher.Dispatch(nil, func() result.Result { return handler(data) })
	}
}

func (m *Manager) deliver(ev Data) {
	m.mu.Lock()
	reg, ok := m.registrations[ev.Token]
	m.mu.Unlock()
	if !ok {
		return
	}
	handler := reg.Handler
	m.dispatcher.Dispatch(nil, func() result.Result { return handler(ev) })
}

// Dispatcher returns the Manager's bound Dispatcher.
func (m *Manager) Dispatcher() dispatch.Dispatcher { return m.dispatcher }

// Running reports whether the Manager is accepting registrations (i.e. has
// not been shut down).
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

var (
	defaultMgrMu sync.Mutex
	defaultMgr   *Manager
)

// Default returns the process-wide default Manager, lazily constructing
// one with the zero Config on first use. Safe for concurrent first-use.
func Default() (*Manager, error) {
	defaultMgrMu.Lock()
	defer defaultMgrMu.Unlock()
	if defaultMgr == nil {
		m, err := New(Config{})
		if err != nil {
			return nil, err
		}
		defaultMgr = m
	}
	return defaultMgr, nil
}

// SetDefault replaces the process-wide default Manager. Passing nil
// restores lazy construction on next use; the previous Manager is not
// shut down.
func SetDefault(m *Manager) {
	defaultMgrMu.Lock()
	defer defaultMgrMu.Unlock()
	defaultMgr = m
}

// Shutdown marks the Manager non-running, clears registrations, wakes and
// joins poller and timer loops, and shuts down the Dispatcher. Idempotent:
// a second call returns FAILED_PRECONDITION.
func (m *Manager) Shutdown() result.Result {
	m.mu.Lock()
	if m.shutdown.Load() {
		m.mu.Unlock()
		return result.New(result.FailedPrecondition, "already shut down")
	}
	m.shutdown.Store(true)
	m.running = false
	m.registrations = make(map[Token]*Registration)
	m.fdTokens = make(map[int][]Token)
	signalTokens := m.signalTokens
	m.signalTokens = make(map[int][]Token)
	m.mu.Unlock()

	for signo, toks := range signalTokens {
		if len(toks) > 0 {
			trampoline.unsubscribe(syscallSignal(signo), m)
		}
	}

	close(m.stopCh)
	m.wakePipe()
	select {
	case m.timerCh <- struct{}{}:
	default:
	}
	// Loops must be joined before the poller is closed: a loop blocked in
	// Wait holds the poller's lock, and the wake byte (relayed loop to
	// loop by drainEventPipe) is what gets each one out.
	m.wg.Wait()
	_ = m.poller.Close()
	if m.ownsDispatcher {
		m.dispatcher.Shutdown()
	}
	_ = unix.Close(m.pipeR)
	_ = unix.Close(m.pipeW)
	return result.Ok()
}
