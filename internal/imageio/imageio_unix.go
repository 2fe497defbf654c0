//go:build unix

package imageio

import (
	"golang.org/x/sys/unix"
)

// readBytes opens and reads path through golang.org/x/sys/unix rather
// than the os package's string-based path handling, so that a
// filename containing bytes that are not valid UTF-8 is never
// silently mangled by a higher-level string conversion before it
// reaches the kernel.
func readBytes(path string) ([]byte, error) {
	fd, err := unix.Open(path, unix.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	defer unix.Close(fd)

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return nil, err
	}

	buf := make([]byte, 0, st.Size)
	chunk := make([]byte, 64*1024)
	for {
		n, err := unix.Read(fd, chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			return nil, err
		}
		if n == 0 {
			break
		}
	}
	return buf, nil
}
