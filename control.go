package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/tinfoilsh/hawkcall/session"
)

// ControlServer reports session health and metrics on a local port
type ControlServer struct {
	session  *session.Session
	poller   *Poller
	gatherer prometheus.Gatherer
}

func newControlServer(s *session.Session, p *Poller, g prometheus.Gatherer) *ControlServer {
	return &ControlServer{
		session:  s,
		poller:   p,
		gatherer: g,
	}
}

func (s *ControlServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("hawkcall"))
	})

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)

		status := map[string]any{
			"state":        s.session.State().String(),
			"skew_seconds": s.session.Skew().Seconds(),
		}
		if s.poller != nil {
			status["last_call"] = s.poller.Last()
		}
		json.NewEncoder(w).Encode(status)
	})

	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return mux
}

func (s *ControlServer) Start(listenPort int) {
	log.Infof("Control server listening on :%d", listenPort)
	log.Fatal(http.ListenAndServe(fmt.Sprintf(":%d", listenPort), s.Handler()))
}
