// Command quarry plans and applies schema migrations and generates typed
// column packages from schema descriptor files.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/syssam/quarry/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.Execute(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
