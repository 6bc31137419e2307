//go:build unix

package cli

import (
	"os"
	"syscall"
)

// wakeSignals make a running agent flush and pull at once.
var wakeSignals = []os.Signal{syscall.SIGUSR1}
