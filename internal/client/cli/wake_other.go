//go:build !unix

package cli

import "os"

var wakeSignals []os.Signal
