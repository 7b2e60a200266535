//go:build linux

package fdio

import (
	"github.com/joeycumines/go-reactor/internal/corelog"
	"golang.org/x/sys/unix"
)

// spliceCopy moves up to max bytes from src to dst with splice(2).
// downgraded reports that the kernel rejected the descriptor pair before
// any terminal outcome, in which case the caller moves on to the next
// strategy with whatever progress was already made.
func spliceCopy(dst, src *Reader2Writer, max int64) (total int64, downgraded bool, err error) {
	for max < 0 || total < max {
		chunk := 1 << 20
		if max >= 0 {
			if remaining := max - total; remaining < int64(chunk) {
				chunk = int(remaining)
			}
		}
		n, err := unix.Splice(src.fd, nil, dst.fd, nil, chunk, unix.SPLICE_F_MOVE)
		if err != nil {
			switch err {
			case unix.ENOSYS, unix.EINVAL:
				corelog.Get().Info().Str("reason", err.Error()).Log("fdio: splice unsupported, trying sendfile")
				return total, true, nil
			case unix.EAGAIN, unix.EINTR:
				continue
			default:
				return total, false, err
			}
		}
		if n == 0 {
			// Source exhausted; like the portable loop, EOF is a normal
			// end of transfer, not an error.
			return total, false, nil
		}
		total += n
	}
	return total, false, nil
}
