// Package session keeps a Hawk client's timestamps in line with the server
// clock. A Session learns the server time from an unauthenticated status
// endpoint, signs requests with the corrected time, and resynchronizes once
// when the server rejects a signature.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/tinfoilsh/hawkcall/hawk"
)

const DefaultTimeout = 20 * time.Second

type State int

const (
	Uncorrected State = iota
	Synced
	Resyncing
	Failed
	// Offline means the last warm-up found the service down for maintenance
	Offline
)

func (s State) String() string {
	switch s {
	case Uncorrected:
		return "uncorrected"
	case Synced:
		return "synced"
	case Resyncing:
		return "resyncing"
	case Failed:
		return "failed"
	case Offline:
		return "offline"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type Config struct {
	StatusURL  string
	Credential hawk.Credential

	// Optional
	Client  *http.Client
	Signer  *hawk.Signer
	Clock   Clock
	Metrics *Metrics
	// Timeout applies to the default client only
	Timeout time.Duration
}

// Session is safe for concurrent use. Calls are serialized: a warm-up and the
// signed attempts that depend on it run under one lock.
type Session struct {
	statusURL *url.URL
	cred      hawk.Credential
	client    *http.Client
	signer    *hawk.Signer
	clock     Clock
	metrics   *Metrics

	mu    sync.Mutex
	skew  time.Duration
	state State

	// copy of skew and state that readers can take while a call holds mu
	viewMu    sync.RWMutex
	viewSkew  time.Duration
	viewState State
}

func New(cfg Config) (*Session, error) {
	u, err := url.Parse(cfg.StatusURL)
	if err != nil || u.Hostname() == "" {
		return nil, newError(KindMalformedTarget, err, "status url %q", cfg.StatusURL)
	}

	s := &Session{
		statusURL: u,
		cred:      cfg.Credential,
		client:    cfg.Client,
		signer:    cfg.Signer,
		clock:     cfg.Clock,
		metrics:   cfg.Metrics,
	}
	if s.client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		s.client = &http.Client{Timeout: timeout}
	}
	if s.signer == nil {
		s.signer = hawk.NewSigner(nil)
	}
	if s.clock == nil {
		s.clock = SystemClock
	}
	return s, nil
}

// Skew returns the current clock correction. It does not wait for a call in
// flight.
func (s *Session) Skew() time.Duration {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	return s.viewSkew
}

func (s *Session) State() State {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	return s.viewState
}

// setState must be called with mu held
func (s *Session) setState(state State) {
	s.state = state
	s.viewMu.Lock()
	s.viewState = state
	s.viewSkew = s.skew
	s.viewMu.Unlock()
}

// Warmup fetches the server time and replaces the clock correction
func (s *Session) Warmup(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.warmup(ctx)
}

func (s *Session) warmup(ctx context.Context) error {
	local := s.clock.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.statusURL.String(), nil)
	if err != nil {
		s.metrics.warmup("error")
		return newError(KindMalformedTarget, err, "status url")
	}

	log.Debugf("Warming up against %s", s.statusURL)
	resp, err := s.client.Do(req)
	if err != nil {
		s.metrics.warmup("error")
		return newError(KindTransport, err, "warm-up")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		s.metrics.warmup("error")
		return newError(KindTransport, err, "reading status")
	}
	if resp.StatusCode != http.StatusOK {
		s.metrics.warmup("error")
		return newError(KindBadStatus, nil, "status endpoint returned %s", resp.Status)
	}

	status, err := DecodeServerStatus(body)
	if err != nil {
		s.metrics.warmup("error")
		return newError(KindBadStatus, err, "")
	}
	if status.Offline {
		s.metrics.warmup("offline")
		log.Warnf("The service is offline: %s", status.OfflineMessage)
		s.setState(Offline)
		return newError(KindServerOffline, nil, "%s", status.OfflineMessage)
	}

	s.skew = status.ServerUTCTime.Sub(local)
	s.setState(Synced)
	s.metrics.warmup("ok")
	s.metrics.skew(s.skew.Seconds())
	log.Debugf("Clock skew is %s", s.skew)
	return nil
}

// Call sends a signed GET to target and returns the response body. A 401
// triggers one warm-up and one more attempt; a second 401 fails with
// ErrAuthenticationFailed.
func (s *Session) Call(ctx context.Context, target *url.URL) ([]byte, error) {
	if target == nil || target.Hostname() == "" {
		return nil, newError(KindMalformedTarget, hawk.ErrMalformedTarget, "")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Synced {
		if err := s.warmup(ctx); err != nil {
			return nil, err
		}
	}

	resp, err := s.attempt(ctx, target)
	if err != nil {
		return nil, err
	}

	if resp.status == http.StatusUnauthorized {
		s.setState(Resyncing)
		log.Infof("%s rejected the signature, resyncing clock", target.Host)

		if err := s.warmup(ctx); err != nil {
			if s.state != Offline {
				s.setState(Failed)
			}
			return nil, err
		}

		resp, err = s.attempt(ctx, target)
		if err != nil {
			return nil, err
		}
		if resp.status == http.StatusUnauthorized {
			s.setState(Failed)
			return nil, newError(KindAuthenticationFailed,
				newError(KindUnauthorized, nil, "%s", excerpt(resp.body)),
				"%s rejected the signature after resync", target.Host)
		}
	}

	if resp.status/100 != 2 {
		return nil, newError(KindUnexpectedStatus, nil, "%s returned %d: %s", target.Host, resp.status, excerpt(resp.body))
	}
	return resp.body, nil
}

type response struct {
	status int
	body   []byte
}

func (s *Session) attempt(ctx context.Context, target *url.URL) (*response, error) {
	ts := s.clock.Now().Add(s.skew).Unix()

	header, err := s.signer.Header(http.MethodGet, target, s.cred, ts, "")
	if err != nil {
		if errors.Is(err, hawk.ErrMalformedTarget) {
			return nil, newError(KindMalformedTarget, err, "")
		}
		return nil, fmt.Errorf("failed to sign request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, newError(KindMalformedTarget, err, "")
	}
	req.Header.Set("Authorization", header)
	if log.IsLevelEnabled(log.TraceLevel) {
		if h, err := hawk.ParseHeader(header); err == nil {
			log.Tracef("Authorization: Hawk id=%q, ts=%d, nonce=%q, mac=<elided>", h.ID, h.Timestamp, h.Nonce)
		}
	}

	log.Debugf("Sending signed request to %s (ts=%d)", target, ts)
	resp, err := s.client.Do(req)
	if err != nil {
		s.metrics.attempt("error")
		return nil, newError(KindTransport, err, "signed request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		s.metrics.attempt("error")
		return nil, newError(KindTransport, err, "reading response")
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		s.metrics.attempt("unauthorized")
	case resp.StatusCode/100 == 2:
		s.metrics.attempt("ok")
	default:
		s.metrics.attempt("status")
	}
	log.Tracef("%s responded %s", target.Host, resp.Status)

	return &response{status: resp.StatusCode, body: body}, nil
}

func excerpt(b []byte) string {
	const limit = 200
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
