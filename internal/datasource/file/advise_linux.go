package file

import (
	"os"

	"golang.org/x/sys/unix"
)

// adviseSequential hints the page cache to read ahead aggressively. Failure
// only costs performance, so the error is dropped.
func adviseSequential(f *os.File) {
	_ = unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_SEQUENTIAL)
}
