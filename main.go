package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	dial := flag.Bool("call", false, "start a call immediately")
	flag.Parse()

	engine, err := NewEngine(*configPath)
	if err != nil {
		log.Fatalf("[Engine] startup failed: %v", err)
	}
	defer engine.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Printf("[Engine] shutting down")
		cancel()
		engine.EndCall()
	}()

	if *dial {
		if err := engine.StartCall(ctx); err != nil {
			log.Fatalf("[Engine] start failed: %v", err)
		}
	}

	if err := engine.Run(ctx, os.Stdin); err != nil && err != context.Canceled {
		log.Fatalf("[Engine] %v", err)
	}
}
