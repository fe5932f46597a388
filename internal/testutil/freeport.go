// Package testutil holds small helpers shared by tests and test tooling.
package testutil

import (
	"fmt"
	"net"
)

// FreePort asks the kernel for a free TCP port on the loopback interface.
// The listener is closed before returning, so another process may claim the
// port before the caller binds it.
func FreePort() (int, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("listen: %w", err)
	}
	addr, ok := ln.Addr().(*net.TCPAddr)
	if !ok {
		_ = ln.Close()
		return 0, fmt.Errorf("unexpected listener address %T", ln.Addr())
	}
	if err := ln.Close(); err != nil {
		return 0, fmt.Errorf("close listener: %w", err)
	}
	return addr.Port, nil
}
