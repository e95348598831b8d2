package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/meridian-network/carbonx/app/collector"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := collector.Initialize(ctx)
	if err != nil {
		panic(err)
	}

	app.Start(ctx)
}
