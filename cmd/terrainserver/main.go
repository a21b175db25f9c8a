package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tibogot/wawa-terrain/internal/config"
	"github.com/tibogot/wawa-terrain/internal/server"
)

// shutdownGrace bounds how long in-flight chunk builds may hold up exit
// after SIGINT/SIGTERM.
const shutdownGrace = 10 * time.Second

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "", "path to terrain server configuration file")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	srv, err := server.New(cfg)
	if err != nil {
		log.Fatalf("initialise terrain server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		time.AfterFunc(shutdownGrace, func() {
			log.Printf("shutdown timed out after %v, exiting", shutdownGrace)
			os.Exit(1)
		})
	}()

	if err := srv.Run(ctx); err != nil {
		log.Fatalf("server exited with error: %v", err)
	}
}
