package reactor

import (
	"sync"

	"github.com/joeycumines/go-reactor/result"
	"golang.org/x/sys/unix"
)

// pollPoller is the portable poll(2) backend. Unlike epoll and kqueue,
// poll rebuilds its descriptor list on every wait, so interest changes
// made while a Wait is blocked are signalled through an internal
// self-pipe: mutators write a byte, the blocked wait observes it, drains
// it, and re-polls against the updated list.
type pollPoller struct {
	mu           sync.Mutex // serializes waiters, like the other backends
	interest     map[int]Set
	wakeR, wakeW int
	closed       bool

	imu sync.Mutex // guards interest against mutation during a blocked Wait
}

func newPollPoller() (Poller, error) {
	r, w, err := makeEventPipe()
	if err != nil {
		return nil, err
	}
	// Probe the syscall itself so an unsupported kernel is rejected at
	// construction rather than on first Wait.
	if _, err := unix.Poll([]unix.PollFd{{Fd: int32(r), Events: unix.POLLIN}}, 0); err != nil {
		_ = unix.Close(r)
		_ = unix.Close(w)
		return nil, err
	}
	return &pollPoller{interest: make(map[int]Set), wakeR: r, wakeW: w}, nil
}

func toPollEvents(set Set) int16 {
	var e int16
	if set.Has(Readable) {
		e |= unix.POLLIN
	}
	if set.Has(PriorityReadable) {
		e |= unix.POLLPRI
	}
	if set.Has(Writable) {
		e |= unix.POLLOUT
	}
	return e
}

func fromPollEvents(e int16) Set {
	var s Set
	if e&unix.POLLIN != 0 {
		s |= Readable
	}
	if e&unix.POLLPRI != 0 {
		s |= PriorityReadable
	}
	if e&unix.POLLOUT != 0 {
		s |= Writable
	}
	if e&(unix.POLLERR|unix.POLLNVAL) != 0 {
		s |= Error
	}
	if e&unix.POLLHUP != 0 {
		s |= Hangup
	}
	return s
}

func (p *pollPoller) wake() {
	for {
		_, err := unix.Write(p.wakeW, []byte{0})
		if err != unix.EINTR {
			return
		}
	}
}

func (p *pollPoller) drainWake() {
	var buf [64]byte
	for {
		if _, err := unix.Read(p.wakeR, buf[:]); err != nil {
			return
		}
	}
}

func (p *pollPoller) Add(fd int, set Set) result.Result {
	p.imu.Lock()
	if _, ok := p.interest[fd]; ok {
		p.imu.Unlock()
		return result.New(result.AlreadyExists, "fd already registered")
	}
	p.interest[fd] = set
	p.imu.Unlock()
	p.wake()
	return result.Ok()
}

func (p *pollPoller) Modify(fd int, set Set) result.Result {
	p.imu.Lock()
	if _, ok := p.interest[fd]; !ok {
		p.imu.Unlock()
		return result.New(result.NotFound, "fd not registered")
	}
	p.interest[fd] = set
	p.imu.Unlock()
	p.wake()
	return result.Ok()
}

func (p *pollPoller) Remove(fd int) result.Result {
	p.imu.Lock()
	if _, ok := p.interest[fd]; !ok {
		p.imu.Unlock()
		return result.New(result.NotFound, "fd not registered")
	}
	delete(p.interest, fd)
	p.imu.Unlock()
	p.wake()
	return result.Ok()
}

func (p *pollPoller) Wait(out *[]ReadyFD, timeoutMs int) result.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return result.New(result.FailedPrecondition, "poller closed")
	}
	for {
		p.imu.Lock()
		fds := make([]unix.PollFd, 1, len(p.interest)+1)
		fds[0] = unix.PollFd{Fd: int32(p.wakeR), Events: unix.POLLIN}
		for fd, set := range p.interest {
			fds = append(fds, unix.PollFd{Fd: int32(fd), Events: toPollEvents(set)})
		}
		p.imu.Unlock()

		n, err := unix.Poll(fds, timeoutMs)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return result.New(result.Internal, "poll failed").WithErrno(err)
		}
		if n == 0 {
			return result.Ok()
		}

		woken := fds[0].Revents != 0
		if woken {
			p.drainWake()
		}
		reported := false
		for _, pfd := range fds[1:] {
			if pfd.Revents == 0 {
				continue
			}
			*out = append(*out, ReadyFD{FD: int(pfd.Fd), Set: fromPollEvents(pfd.Revents)})
			reported = true
		}
		if reported || !woken || timeoutMs >= 0 {
			return result.Ok()
		}
		// Only the interest-change wake fired on an unbounded wait:
		// rebuild the list and keep waiting.
	}
}

func (p *pollPoller) Close() result.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return result.New(result.FailedPrecondition, "poller already closed")
	}
	p.closed = true
	_ = unix.Close(p.wakeR)
	_ = unix.Close(p.wakeW)
	return result.Ok()
}
