// Package main запускает CLI и локального агента курьера.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	a := newApp(os.Stdout)
	err := newRootCommand(a).ExecuteContext(ctx)
	a.close()
	stop()

	if err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}
