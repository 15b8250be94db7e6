package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/aussiebroadwan/passport/internal/authctl"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := authctl.Execute(ctx)
	stop()
	os.Exit(code)
}
