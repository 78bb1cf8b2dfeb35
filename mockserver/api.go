package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/tinfoilsh/hawkcall/hawk"
	"github.com/tinfoilsh/hawkcall/key"
)

const serverTimeLayout = "2006-01-02T15:04:05.0000000Z"

type statusResponse struct {
	Offline        bool   `json:"Offline"`
	OffLineMessage string `json:"OffLineMessage"`
	ServerUtcTime  string `json:"ServerUtcTime"`
}

type property struct {
	PropertyID int    `json:"PropertyId"`
	Name       string `json:"Name"`
	City       string `json:"City"`
}

var sampleProperties = []property{
	{PropertyID: 1001, Name: "Strandvejen 12", City: "Skagen"},
	{PropertyID: 1002, Name: "Klitrosevej 4", City: "Blokhus"},
	{PropertyID: 1003, Name: "Havnegade 7", City: "Ærøskøbing"},
}

// API serves the status endpoint and the Hawk protected resource
type API struct {
	verifier *hawk.Verifier
	limiter  *RateLimiter
	requests *prometheus.CounterVec
	now      func() time.Time

	offline        atomic.Bool
	offlineMessage string
	clockOffset    atomic.Int64
}

func NewAPI(cfg *serverConfig, store key.Store, reg prometheus.Registerer) (*API, error) {
	a := &API{
		limiter:        NewRateLimiter(cfg.rateLimit(), cfg.RateBurst),
		now:            time.Now,
		offlineMessage: cfg.OfflineMessage,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hawkcall",
			Subsystem: "mock",
			Name:      "requests_total",
			Help:      "Requests served by endpoint and status code.",
		}, []string{"endpoint", "code"}),
	}
	a.offline.Store(cfg.Offline)
	a.clockOffset.Store(int64(cfg.ClockOffset))
	a.verifier = &hawk.Verifier{
		Credentials: store,
		Skew:        cfg.Tolerance,
		Now:         a.serverTime,
		Nonces:      hawk.NewNonceCache(2 * cfg.Tolerance),
	}

	if reg != nil {
		if err := reg.Register(a.requests); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// SetClockOffset moves the server clock relative to the host clock
func (a *API) SetClockOffset(d time.Duration) {
	a.clockOffset.Store(int64(d))
}

func (a *API) SetOffline(offline bool) {
	a.offline.Store(offline)
}

func (a *API) serverTime() time.Time {
	return a.now().Add(time.Duration(a.clockOffset.Load()))
}

func (a *API) count(endpoint string, code int) {
	a.requests.WithLabelValues(endpoint, strconv.Itoa(code)).Inc()
}

func (a *API) status(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{ServerUtcTime: a.serverTime().UTC().Format(serverTimeLayout)}
	if a.offline.Load() {
		resp.Offline = true
		resp.OffLineMessage = a.offlineMessage
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
	a.count("status", http.StatusOK)
}

func (a *API) properties(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "mock: 405 method not allowed", http.StatusMethodNotAllowed)
		a.count("properties", http.StatusMethodNotAllowed)
		return
	}

	cred, err := a.verifier.Verify(r)
	if err != nil {
		log.Warnf("Rejected request to %s: %v", r.URL.Path, err)
		challenge := "Hawk"
		if errors.Is(err, hawk.ErrStaleTimestamp) {
			challenge = fmt.Sprintf(`Hawk ts="%d", error="Stale timestamp"`, a.serverTime().Unix())
		}
		w.Header().Set("WWW-Authenticate", challenge)
		http.Error(w, "mock: 401 "+err.Error(), http.StatusUnauthorized)
		a.count("properties", http.StatusUnauthorized)
		return
	}

	if !a.limiter.Allow(cred.ID) {
		http.Error(w, "mock: 429 rate limit exceeded", http.StatusTooManyRequests)
		a.count("properties", http.StatusTooManyRequests)
		return
	}

	log.Debugf("Serving properties to %s", cred.ID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(sampleProperties)
	a.count("properties", http.StatusOK)
}

func newMux(a *API, gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/system/status", a.status)
	mux.HandleFunc("/v1/SupplierServices/Properties", a.properties)
	if gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}
