package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp(os.Stdout)
	if err := execute(ctx, a, newRootCmd(a)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// execute runs root and tears a down afterwards. Cobra skips post-run hooks
// when a command fails, so teardown cannot live there.
func execute(ctx context.Context, a *app, root *cobra.Command) error {
	defer a.teardown()
	return root.ExecuteContext(ctx)
}
