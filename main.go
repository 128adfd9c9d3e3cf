// Command ccicube discovers, describes, opens and plots ESA CCI climate
// datasets held in a data store.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	a := &app{}
	err := execute(ctx, newRootCmd(a), a)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// execute runs the command line and pushes the metrics of the run, whether
// it failed or not.
func execute(ctx context.Context, root *cobra.Command, a *app) error {
	err := root.ExecuteContext(ctx)
	a.pushMetrics(context.WithoutCancel(ctx))
	return err
}
