package main

import (
	"flag"
	"fmt"

	"go.uber.org/zap"

	"objectstore/internal/proxy"
	"objectstore/pkg/logging"
)

func main() {
	targetAddr := flag.String("target", "http://localhost:8081", "Base URL of the node to forward requests to")
	listenPort := flag.Int("port", 9081, "Port to run the chaos proxy on")
	delay := flag.Duration("delay", 0, "Artificial delay to add to each request")
	errorRate := flag.Float64("error-rate", 0.0, "Fraction of requests (0.0-1.0) to fail outright")
	logLevel := flag.String("log-level", "info", "debug, info, warn, or error")

	flag.Parse()

	log := logging.MustGet(logging.Config{
		Service:     "chaos-proxy",
		Level:       *logLevel,
		OutputPaths: []string{"stdout"},
	})
	defer logging.Shutdown()

	p := proxy.NewThrottleProxy(*targetAddr, *delay, *errorRate, log)
	if err := p.Start(fmt.Sprintf(":%d", *listenPort)); err != nil {
		log.Error("chaos proxy exited", zap.Error(err))
	}
}
