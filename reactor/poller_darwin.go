//go:build darwin

package reactor

import (
	"sync"

	"github.com/joeycumines/go-reactor/result"
	"golang.org/x/sys/unix"
)

// kqueuePoller is a Poller backed by kqueue.
type kqueuePoller struct {
	mu     sync.Mutex // serializes waiters; kqueue changes are safe concurrently
	kq     int
	events [256]unix.Kevent_t
	closed bool

	// interest tracks each fd's last-registered Set, since kqueue has no
	// single "modify" verb: changing interest means re-submitting the
	// changelist for both filters. Guarded by its own mutex so mutators
	// never wait behind a blocked Kevent.
	imu      sync.Mutex
	interest map[int]Set
}

func newPlatformPoller() (Poller, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	unix.CloseOnExec(kq)
	return &kqueuePoller{kq: kq, interest: make(map[int]Set)}, nil
}

func newEpollPoller() (Poller, error) {
	return nil, result.New(result.NotImplemented, "epoll is not available on this platform").AsError()
}

// changelist builds the kevent changes moving fd's registration from the
// old interest set to the new one. Deletes are only issued for filters
// actually registered, since kevent rejects EV_DELETE of a filter it has
// never seen.
func (p *kqueuePoller) changelist(fd int, old, new Set) []unix.Kevent_t {
	var changes []unix.Kevent_t
	addFlags := func(filter int16, flags uint16) {
		changes = append(changes, unix.Kevent_t{
			Ident:  uint64(fd),
			Filter: filter,
			Flags:  flags,
		})
	}
	if new.Has(Readable) {
		addFlags(unix.EVFILT_READ, unix.EV_ADD|unix.EV_ENABLE)
	} else if old.Has(Readable) {
		addFlags(unix.EVFILT_READ, unix.EV_DELETE)
	}
	if new.Has(Writable) {
		addFlags(unix.EVFILT_WRITE, unix.EV_ADD|unix.EV_ENABLE)
	} else if old.Has(Writable) {
		addFlags(unix.EVFILT_WRITE, unix.EV_DELETE)
	}
	return changes
}

func (p *kqueuePoller) apply(fd int, old, new Set) error {
	changes := p.changelist(fd, old, new)
	if len(changes) == 0 {
		return nil
	}
	_, err := unix.Kevent(p.kq, changes, nil, nil)
	return err
}

func (p *kqueuePoller) Add(fd int, set Set) result.Result {
	p.imu.Lock()
	defer p.imu.Unlock()
	if err := p.apply(fd, 0, set); err != nil {
		return result.New(result.Internal, "kevent ADD failed").WithErrno(err)
	}
	p.interest[fd] = set
	return result.Ok()
}

func (p *kqueuePoller) Modify(fd int, set Set) result.Result {
	p.imu.Lock()
	defer p.imu.Unlock()
	if err := p.apply(fd, p.interest[fd], set); err != nil {
		return result.New(result.Internal, "kevent MOD failed").WithErrno(err)
	}
	p.interest[fd] = set
	return result.Ok()
}

func (p *kqueuePoller) Remove(fd int) result.Result {
	p.imu.Lock()
	defer p.imu.Unlock()
	if err := p.apply(fd, p.interest[fd], 0); err != nil {
		return result.New(result.Internal, "kevent DEL failed").WithErrno(err)
	}
	delete(p.interest, fd)
	return result.Ok()
}

func (p *kqueuePoller) Wait(out *[]ReadyFD, timeoutMs int) result.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return result.New(result.FailedPrecondition, "poller closed")
	}
	var ts *unix.Timespec
	if timeoutMs >= 0 {
		t := unix.NsecToTimespec(int64(timeoutMs) * 1e6)
		ts = &t
	}
	for {
		n, err := unix.Kevent(p.kq, nil, p.events[:], ts)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return result.New(result.Internal, "kevent wait failed").WithErrno(err)
		}
		merged := make(map[int]Set, n)
		for i := 0; i < n; i++ {
			ev := p.events[i]
			fd := int(ev.Ident)
			var s Set
			switch ev.Filter {
			case unix.EVFILT_READ:
				s = Readable
			case unix.EVFILT_WRITE:
				s = Writable
			}
			if ev.Flags&unix.EV_EOF != 0 {
				s |= Hangup
			}
			if ev.Flags&unix.EV_ERROR != 0 {
				s |= Error
			}
			merged[fd] |= s
		}
		for fd, s := range merged {
			*out = append(*out, ReadyFD{FD: fd, Set: s})
		}
		return result.Ok()
	}
}

func (p *kqueuePoller) Close() result.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return result.New(result.FailedPrecondition, "poller already closed")
	}
	p.closed = true
	if err := unix.Close(p.kq); err != nil {
		return result.New(result.Internal, "close kqueue fd failed").WithErrno(err)
	}
	return result.Ok()
}
