package reactor

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joeycumines/go-reactor/internal/corelog"
)

// signalTrampoline fans a process-wide os/signal channel out to every
// Manager subscribed to a given signal number. Go already serializes
// signal delivery through a single runtime-owned channel, so that channel
// is the multiplexing point. Per-signal PID/UID/status/queued-value
// enrichment is only available via siginfo_t, which os/signal does not
// expose; subscribers receive the signal number with the rest of Data's
// signal fields zeroed.
type signalTrampoline struct {
	mu   sync.Mutex
	subs map[os.Signal]map[*Manager]struct{}
	ch   chan os.Signal
}

var trampoline = &signalTrampoline{
	subs: make(map[os.Signal]map[*Manager]struct{}),
}

// syscallSignal converts a raw signal number into the os.Signal value
// os/signal expects.
func syscallSignal(signo int) os.Signal {
	return syscall.Signal(signo)
}

func (t *signalTrampoline) subscribe(sig os.Signal, m *Manager) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ch == nil {
		t.ch = make(chan os.Signal, 64)
		go t.loop()
	}
	set := t.subs[sig]
	if set == nil {
		set = make(map[*Manager]struct{})
		t.subs[sig] = set
		signal.Notify(t.ch, sig)
	}
	set[m] = struct{}{}
}

func (t *signalTrampoline) unsubscribe(sig os.Signal, m *Manager) {
	t.mu.Lock()
	defer t.mu.Unlock()
	set := t.subs[sig]
	if set == nil {
		return
	}
	delete(set, m)
	if len(set) == 0 {
		delete(t.subs, sig)
		// signal.Stop removes the channel from every signal it was
		// registered for, so the surviving subscriptions have to be
		// re-registered afterwards.
		signal.Stop(t.ch)
		if len(t.subs) > 0 {
			remaining := make([]os.Signal, 0, len(t.subs))
			for s := range t.subs {
				remaining = append(remaining, s)
			}
			signal.Notify(t.ch, remaining...)
		}
	}
}

func (t *signalTrampoline) loop() {
	for sig := range t.ch {
		t.mu.Lock()
		managers := make([]*Manager, 0, len(t.subs[sig]))
		for m := range t.subs[sig] {
			managers = append(managers, m)
		}
		t.mu.Unlock()
		signo := int(sig.(syscall.Signal))
		if len(managers) == 0 {
			corelog.Get().Info().Int("signo", signo).Log("reactor: signal delivered with no subscribed managers")
		} else if len(managers) > 1 {
			corelog.Get().Debug().Int("signo", signo).Int("managers", len(managers)).Log("reactor: fanning signal out to multiple managers")
		}
		for _, m := range managers {
			m.deliverSignal(signo)
		}
	}
}
