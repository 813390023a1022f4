// +build darwin

package filesystem

import (
	"os"
	"syscall"
	"time"

	"github.com/pkg/errors"
)

// StatExtra extracts the inode number and status-change time (ctime) from a
// stat result, fields os.FileInfo doesn't expose portably.
func StatExtra(info os.FileInfo) (inode uint64, ctime time.Time, err error) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, time.Time{}, errors.New("unable to extract raw filesystem information")
	}
	return stat.Ino, time.Unix(stat.Ctimespec.Sec, stat.Ctimespec.Nsec), nil
}
