package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/tinfoilsh/hawkcall/session"
)

var (
	configFile = flag.String("c", "config.yml", "Path to config file")
	verbose    = flag.Bool("v", false, "Debug logging")
	trace      = flag.Bool("vv", false, "Trace logging")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	switch {
	case *trace:
		log.SetLevel(log.TraceLevel)
	case *verbose || cfg.Verbose:
		log.SetLevel(log.DebugLevel)
	}

	reg := prometheus.NewRegistry()
	metrics, err := session.NewMetrics(reg)
	if err != nil {
		log.Fatal(err)
	}

	var clock session.Clock = session.SystemClock
	if cfg.SimulatedDrift != 0 {
		log.Warnf("Simulating a local clock off by %s", cfg.SimulatedDrift)
		clock = session.OffsetClock{Offset: cfg.SimulatedDrift}
	}

	s, err := session.New(session.Config{
		StatusURL:  cfg.StatusURL,
		Credential: cfg.Credential(),
		Clock:      clock,
		Metrics:    metrics,
		Timeout:    cfg.Timeout,
	})
	if err != nil {
		log.Fatal(err)
	}
	log.Infof("Calling %s as %s", cfg.target, cfg.Credential())

	// a full call is at most two warm-ups and two signed attempts
	cycleTimeout := 4 * cfg.Timeout
	printBody := func(body []byte) {
		fmt.Println(string(body))
	}

	if cfg.Interval == 0 {
		body, err := callOnce(s, cfg.target, cycleTimeout)
		if err != nil {
			log.Fatal(err)
		}
		printBody(body)
		return
	}

	poller := NewPoller(s, cfg.target, cfg.Interval, cycleTimeout, printBody)
	if cfg.ControlPort != 0 {
		go newControlServer(s, poller, reg).Start(cfg.ControlPort)
	}
	poller.Start()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	log.Info("Shutting down")
	poller.Stop()
}

func callOnce(s *session.Session, target *url.URL, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.Call(ctx, target)
}
