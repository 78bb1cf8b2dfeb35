package main

import (
	"crypto/tls"
	"flag"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/tinfoilsh/hawkcall/key"
	"github.com/tinfoilsh/hawkcall/key/offline"
	"github.com/tinfoilsh/hawkcall/key/online"
	tlsutil "github.com/tinfoilsh/hawkcall/tls"
)

var (
	configFile = flag.String("c", "mockserver.yml", "Path to config file")
	verbose    = flag.Bool("v", false, "Verbose logging")
)

func credentialStore(cfg *serverConfig) (key.Store, error) {
	if cfg.KeyServer != "" {
		log.Infof("Looking up credentials at %s", cfg.KeyServer)
		s, err := online.NewStore(cfg.KeyServer, cfg.KeyCacheTTL)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	s, err := offline.Load(cfg.CredentialsFile)
	if err != nil {
		return nil, err
	}
	log.Infof("Loaded %d credentials from %s", s.Len(), cfg.CredentialsFile)
	return s, nil
}

func certificate(cfg *serverConfig) (*tls.Certificate, error) {
	k, err := tlsutil.NewKey()
	if err != nil {
		return nil, err
	}

	if cfg.TLS == "acme" {
		cm, err := tlsutil.NewCertManager(tlsutil.ACMEConfig{
			Email:    cfg.ACMEEmail,
			CacheDir: cfg.CacheDir,
		}, k)
		if err != nil {
			return nil, err
		}
		return cm.Certificate(cfg.Hostnames...)
	}

	cert, err := tlsutil.SelfSigned(k, 24*time.Hour, cfg.Hostnames...)
	if err != nil {
		return nil, err
	}
	fp, err := tlsutil.KeyFP(cert.Leaf)
	if err != nil {
		return nil, err
	}
	log.Infof("Self-signed certificate key fingerprint %s", fp)
	return cert, nil
}

func main() {
	flag.Parse()
	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	cfg, err := loadServerConfig(*configFile)
	if err != nil {
		log.Fatal(err)
	}

	store, err := credentialStore(cfg)
	if err != nil {
		log.Fatalf("Failed to open credential store: %v", err)
	}

	reg := prometheus.NewRegistry()
	api, err := NewAPI(cfg, store, reg)
	if err != nil {
		log.Fatal(err)
	}
	if cfg.ClockOffset != 0 {
		log.Warnf("Server clock is offset by %s", cfg.ClockOffset)
	}

	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           newMux(api, reg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.TLS == "none" {
		log.Printf("Listening on http://%s", cfg.Listen)
		log.Fatal(server.ListenAndServe())
	}

	cert, err := certificate(cfg)
	if err != nil {
		log.Fatalf("Failed to get certificate: %v", err)
	}
	server.TLSConfig = &tls.Config{Certificates: []tls.Certificate{*cert}}

	log.Printf("Listening on https://%s", cfg.Listen)
	log.Fatal(server.ListenAndServeTLS("", ""))
}
