//go:build js || plan9

package exclusive

import (
	"os"

	"github.com/pkg/errors"
)

var errUnsupported = errors.New("file locks are not supported on this platform")

func lockFile(file *os.File) error {
	return errUnsupported
}

func unlockFile(file *os.File) error {
	return errUnsupported
}

func isContention(err error) bool {
	return false
}
