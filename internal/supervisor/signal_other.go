//go:build !unix

package supervisor

import "os"

// Windows has no termination signal that can be sent to another process.
func terminate(p *os.Process) error {
	return p.Kill()
}
