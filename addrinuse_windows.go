//go:build windows

package dashserve

import (
	"errors"
	"syscall"

	"golang.org/x/sys/windows"
)

// isAddrInUse reports whether a listen error means another socket holds the address.
// Winsock reports WSAEADDRINUSE rather than the emulated syscall.EADDRINUSE.
func isAddrInUse(err error) bool {
	return errors.Is(err, windows.WSAEADDRINUSE) || errors.Is(err, syscall.EADDRINUSE)
}
