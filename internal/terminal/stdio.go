// Package terminal detects whether the status line written to standard
// output can be updated in place.
package terminal

import (
	"os"
)

// StdoutCanUpdateStatus returns true if status lines printed to standard
// output can be overwritten.
func StdoutCanUpdateStatus() bool {
	return CanUpdateStatus(os.Stdout.Fd())
}
