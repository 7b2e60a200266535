//go:build linux

package reactor

import (
	"sync"

	"github.com/joeycumines/go-reactor/result"
	"golang.org/x/sys/unix"
)

// epollPoller is a Poller backed by epoll: an epoll fd plus a
// preallocated event buffer. Callback resolution is the Manager's job,
// not the Poller's.
type epollPoller struct {
	mu     sync.Mutex
	epfd   int
	events [256]unix.EpollEvent
	closed bool
}

func newPlatformPoller() (Poller, error) {
	return newEpollPoller()
}

func newEpollPoller() (Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollPoller{epfd: epfd}, nil
}

func toEpollEvents(set Set) uint32 {
	var e uint32
	if set.Has(Readable) {
		e |= unix.EPOLLIN
	}
	if set.Has(PriorityReadable) {
		e |= unix.EPOLLPRI
	}
	if set.Has(Writable) {
		e |= unix.EPOLLOUT
	}
	return e
}

func fromEpollEvents(e uint32) Set {
	var s Set
	if e&unix.EPOLLIN != 0 {
		s |= Readable
	}
	if e&unix.EPOLLPRI != 0 {
		s |= PriorityReadable
	}
	if e&unix.EPOLLOUT != 0 {
		s |= Writable
	}
	if e&unix.EPOLLERR != 0 {
		s |= Error
	}
	if e&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
		s |= Hangup
	}
	return s
}

func (p *epollPoller) Add(fd int, set Set) result.Result {
	ev := unix.EpollEvent{Events: toEpollEvents(set), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return result.New(result.Internal, "epoll_ctl ADD failed").WithErrno(err)
	}
	return result.Ok()
}

func (p *epollPoller) Modify(fd int, set Set) result.Result {
	ev := unix.EpollEvent{Events: toEpollEvents(set), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return result.New(result.Internal, "epoll_ctl MOD failed").WithErrno(err)
	}
	return result.Ok()
}

func (p *epollPoller) Remove(fd int) result.Result {
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return result.New(result.Internal, "epoll_ctl DEL failed").WithErrno(err)
	}
	return result.Ok()
}

func (p *epollPoller) Wait(out *[]ReadyFD, timeoutMs int) result.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return result.New(result.FailedPrecondition, "poller closed")
	}
	for {
		n, err := unix.EpollWait(p.epfd, p.events[:], timeoutMs)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return result.New(result.Internal, "epoll_wait failed").WithErrno(err)
		}
		for i := 0; i < n; i++ {
			*out = append(*out, ReadyFD{FD: int(p.events[i].Fd), Set: fromEpollEvents(p.events[i].Events)})
		}
		return result.Ok()
	}
}

func (p *epollPoller) Close() result.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return result.New(result.FailedPrecondition, "poller already closed")
	}
	p.closed = true
	if err := unix.Close(p.epfd); err != nil {
		return result.New(result.Internal, "close epoll fd failed").WithErrno(err)
	}
	return result.Ok()
}
