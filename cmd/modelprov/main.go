// Command modelprov manages a model provenance registry from the command line.
//
// It operates directly on the data directory, which may be shared with a
// running modelprovd.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/maruel/modelprov/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	ll := logging.Setup()
	err := newRootCmd(ll).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
