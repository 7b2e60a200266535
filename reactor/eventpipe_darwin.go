//go:build darwin

package reactor

import "golang.org/x/sys/unix"

// Darwin has no pipe2; the flags are applied after the fact.
func makeEventPipe() (int, int, error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return 0, 0, err
	}
	for _, fd := range fds {
		if err := unix.SetNonblock(fd, true); err != nil {
			_ = unix.Close(fds[0])
			_ = unix.Close(fds[1])
			return 0, 0, err
		}
		unix.CloseOnExec(fd)
	}
	return fds[0], fds[1], nil
}
