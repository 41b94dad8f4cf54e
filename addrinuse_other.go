//go:build !windows

package dashserve

import (
	"errors"
	"syscall"
)

// isAddrInUse reports whether a listen error means another socket holds the address.
func isAddrInUse(err error) bool {
	return errors.Is(err, syscall.EADDRINUSE)
}
