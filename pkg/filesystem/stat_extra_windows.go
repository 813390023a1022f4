// +build windows

package filesystem

import (
	"os"
	"time"
)

// StatExtra is a no-op on Windows, mirroring DeviceID: inode and ctime
// aren't meaningful in the same way on NTFS via os.FileInfo.
func StatExtra(_ os.FileInfo) (inode uint64, ctime time.Time, err error) {
	return 0, time.Time{}, nil
}
