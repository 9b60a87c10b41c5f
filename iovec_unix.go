//go:build unix

package revent

import "golang.org/x/sys/unix"

// readv wraps unix.Readv, retrying transparently on EINTR.
func readv(fd int, iov []unix.Iovec) (int, error) {
	for {
		n, err := unix.Readv(fd, iov)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, err
		}
		return n, nil
	}
}
