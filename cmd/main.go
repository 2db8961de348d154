package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/yungbote/learnmate-backend/internal/app"
)

func main() {
	envErr := godotenv.Load()

	a, err := app.New()
	if err != nil {
		fmt.Printf("Failed to init app: %v\n", err)
		os.Exit(1)
	}
	if envErr != nil {
		a.Log.Info("No .env file found, using environment variables")
	}
	a.Start()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + a.Cfg.Port
		a.Log.Info("Server listening", "addr", addr)
		errCh <- a.Run(addr)
	}()

	select {
	case <-ctx.Done():
		a.Log.Info("Shutting down")
	case err := <-errCh:
		if err != nil {
			a.Log.Error("Server failed", "error", err)
		}
	}
	a.Close()
}
