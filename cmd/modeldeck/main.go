package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "modeldeck: %v\n", err)
		os.Exit(1)
	}
}
