package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relabs-tech/rush_recorder/internal/app"
)

func main() {
	rate := flag.Float64("rate", 20, "sample rate in Hz")
	windowDur := flag.Duration("window", 5*time.Second, "window duration")
	flag.Parse()

	log.Println("starting rush-recorder (mock accelerometer console)")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunMockConsole(ctx, os.Stdout, *rate, *windowDur); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
