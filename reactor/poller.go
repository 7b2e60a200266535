package reactor

import "github.com/joeycumines/go-reactor/result"

// ReadyFD is one readiness pair appended by Poller.Wait.
type ReadyFD struct {
	FD  int
	Set Set
}

// Poller wraps a readiness mechanism. It is level-triggered from the
// caller's perspective: a readable descriptor with buffered data continues
// to report readable until the data is consumed. Implementations must
// reject construction if the underlying mechanism is unavailable
// (ENOSYS).
type Poller interface {
	// Add registers fd for the given interest set.
	Add(fd int, set Set) result.Result
	// Modify updates fd's interest set.
	Modify(fd int, set Set) result.Result
	// Remove unregisters fd.
	Remove(fd int) result.Result
	// Wait blocks until at least one registered descriptor is ready or
	// timeoutMs elapses (-1 blocks indefinitely), appending (fd, set)
	// pairs to out. Partial fills are allowed.
	Wait(out *[]ReadyFD, timeoutMs int) result.Result
	// Close releases the underlying OS resource.
	Close() result.Result
}

// PollerType selects a Poller backend at Manager construction.
type PollerType int

const (
	// PollerDefault is the platform's preferred backend (epoll on Linux,
	// kqueue on Darwin).
	PollerDefault PollerType = iota
	// PollerEpoll forces epoll; construction fails off Linux.
	PollerEpoll
	// PollerPoll forces the portable poll(2) backend.
	PollerPoll
)

// NewPoller constructs the platform's default Poller (epoll on Linux,
// kqueue on Darwin).
func NewPoller() (Poller, error) {
	return newPlatformPoller()
}

// NewOfType constructs the requested Poller backend.
func NewOfType(t PollerType) (Poller, error) {
	switch t {
	case PollerDefault:
		return newPlatformPoller()
	case PollerEpoll:
		return newEpollPoller()
	case PollerPoll:
		return newPollPoller()
	default:
		return nil, result.New(result.InvalidArgument, "unknown poller type").AsError()
	}
}
