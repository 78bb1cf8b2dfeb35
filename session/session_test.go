package session

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinfoilsh/hawkcall/hawk"
)

const (
	statusURL = "https://api.example.test/v1/system/status"
	targetURL = "https://api.example.test/v1/SupplierServices/Properties"
)

var (
	testCred = hawk.Credential{ID: "supplier-1", Key: "werxhqb98rpaxn39848xrunpaw3489ruxnpa98w4rxn"}
	epoch    = time.Unix(1700000000, 0)
)

func statusResponder(serverTime func() time.Time) httpmock.Responder {
	return func(req *http.Request) (*http.Response, error) {
		return httpmock.NewJsonResponse(http.StatusOK, map[string]any{
			"Offline":        false,
			"OffLineMessage": "",
			"ServerUtcTime":  serverTime().UTC().Format("2006-01-02T15:04:05.0000000Z"),
		})
	}
}

func headerTimestamp(t *testing.T, req *http.Request) int64 {
	h, err := hawk.ParseHeader(req.Header.Get("Authorization"))
	require.NoError(t, err)
	return h.Timestamp
}

func newTestSession(t *testing.T, clock Clock, metrics *Metrics) *Session {
	s, err := New(Config{
		StatusURL:  statusURL,
		Credential: testCred,
		Clock:      clock,
		Metrics:    metrics,
	})
	require.NoError(t, err)
	return s
}

func target(t *testing.T) *url.URL {
	u, err := url.Parse(targetURL)
	require.NoError(t, err)
	return u
}

func fixedClock(t time.Time) Clock {
	return ClockFunc(func() time.Time { return t })
}

func TestSkewApplied(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("GET", statusURL, statusResponder(func() time.Time {
		return epoch.Add(5 * time.Second)
	}))
	httpmock.RegisterResponder("GET", targetURL, func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, epoch.Unix()+5, headerTimestamp(t, req))
		return httpmock.NewStringResponse(http.StatusOK, `{"properties":[]}`), nil
	})

	s := newTestSession(t, fixedClock(epoch.Add(300*time.Millisecond)), nil)
	assert.Equal(t, Uncorrected, s.State())
	assert.Equal(t, time.Duration(0), s.Skew())

	require.NoError(t, s.Warmup(context.Background()))
	assert.Equal(t, Synced, s.State())
	assert.Equal(t, 4700*time.Millisecond, s.Skew())

	body, err := s.Call(context.Background(), target(t))
	require.NoError(t, err)
	assert.Equal(t, `{"properties":[]}`, string(body))

	info := httpmock.GetCallCountInfo()
	assert.Equal(t, 1, info["GET "+statusURL])
	assert.Equal(t, 1, info["GET "+targetURL])
}

func TestDriftedClockCorrected(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("GET", statusURL, statusResponder(func() time.Time { return epoch }))
	httpmock.RegisterResponder("GET", targetURL, func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, epoch.Unix(), headerTimestamp(t, req))
		return httpmock.NewStringResponse(http.StatusOK, "ok"), nil
	})

	s := newTestSession(t, OffsetClock{Base: fixedClock(epoch), Offset: -30 * time.Minute}, nil)

	// Call warms up on its own when no correction exists yet
	_, err := s.Call(context.Background(), target(t))
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, s.Skew())
}

func TestRetryCeiling(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("GET", statusURL, statusResponder(func() time.Time { return epoch }))
	httpmock.RegisterResponder("GET", targetURL, httpmock.NewStringResponder(http.StatusUnauthorized, "Bad mac"))

	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	s := newTestSession(t, fixedClock(epoch), m)
	_, err = s.Call(context.Background(), target(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Contains(t, err.Error(), "Bad mac")
	assert.Equal(t, Failed, s.State())

	info := httpmock.GetCallCountInfo()
	assert.Equal(t, 2, info["GET "+statusURL])
	assert.Equal(t, 2, info["GET "+targetURL])

	assert.Equal(t, float64(2), testutil.ToFloat64(m.Warmups.WithLabelValues("ok")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.Attempts.WithLabelValues("unauthorized")))
}

func TestResyncRecovers(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	var warmups int
	httpmock.RegisterResponder("GET", statusURL, statusResponder(func() time.Time {
		warmups++
		if warmups == 1 {
			return epoch
		}
		return epoch.Add(90 * time.Second)
	}))
	httpmock.RegisterResponder("GET", targetURL, func(req *http.Request) (*http.Response, error) {
		if headerTimestamp(t, req) != epoch.Unix()+90 {
			return httpmock.NewStringResponse(http.StatusUnauthorized, "Stale timestamp"), nil
		}
		return httpmock.NewStringResponse(http.StatusOK, "ok"), nil
	})

	s := newTestSession(t, fixedClock(epoch), nil)
	body, err := s.Call(context.Background(), target(t))
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, Synced, s.State())
	assert.Equal(t, 90*time.Second, s.Skew())
	assert.Equal(t, 2, warmups)
}

func TestOfflineShortCircuit(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("GET", statusURL, httpmock.NewStringResponder(http.StatusOK,
		`{"Offline":true,"OffLineMessage":"Scheduled maintenance","ServerUtcTime":null}`))
	httpmock.RegisterResponder("GET", targetURL, httpmock.NewStringResponder(http.StatusOK, "ok"))

	s := newTestSession(t, fixedClock(epoch), nil)
	_, err := s.Call(context.Background(), target(t))
	assert.ErrorIs(t, err, ErrServerOffline)
	assert.Contains(t, err.Error(), "Scheduled maintenance")
	assert.Equal(t, Offline, s.State())
	assert.Equal(t, 0, httpmock.GetCallCountInfo()["GET "+targetURL])
}

func TestTransportError(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	netErr := errors.New("connection refused")
	httpmock.RegisterResponder("GET", statusURL, httpmock.NewErrorResponder(netErr))

	s := newTestSession(t, fixedClock(epoch), nil)
	err := s.Warmup(context.Background())
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, netErr)
}

func TestBadStatusResponses(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	s := newTestSession(t, fixedClock(epoch), nil)
	for _, r := range []httpmock.Responder{
		httpmock.NewStringResponder(http.StatusOK, "<html>"),
		httpmock.NewStringResponder(http.StatusOK, `{"Offline":false}`),
		httpmock.NewStringResponder(http.StatusServiceUnavailable, "down"),
	} {
		httpmock.RegisterResponder("GET", statusURL, r)
		assert.ErrorIs(t, s.Warmup(context.Background()), ErrBadStatus)
	}
	assert.Equal(t, Uncorrected, s.State())
}

func TestUnexpectedStatus(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("GET", statusURL, statusResponder(func() time.Time { return epoch }))
	httpmock.RegisterResponder("GET", targetURL, httpmock.NewStringResponder(http.StatusInternalServerError, "boom"))

	s := newTestSession(t, fixedClock(epoch), nil)
	_, err := s.Call(context.Background(), target(t))
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
	assert.Equal(t, 1, httpmock.GetCallCountInfo()["GET "+targetURL])
}

func TestMalformedTarget(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	_, err := New(Config{StatusURL: "/v1/system/status"})
	assert.ErrorIs(t, err, ErrMalformedTarget)

	s := newTestSession(t, fixedClock(epoch), nil)
	_, err = s.Call(context.Background(), &url.URL{Path: "/v1/SupplierServices/Properties"})
	assert.ErrorIs(t, err, ErrMalformedTarget)
	assert.Equal(t, 0, httpmock.GetTotalCallCount())
}

func TestConcurrentCallsShareOneWarmup(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("GET", statusURL, statusResponder(func() time.Time { return epoch }))
	httpmock.RegisterResponder("GET", targetURL, httpmock.NewStringResponder(http.StatusOK, "ok"))

	s := newTestSession(t, fixedClock(epoch), nil)
	u := target(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Call(context.Background(), u)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	info := httpmock.GetCallCountInfo()
	assert.Equal(t, 1, info["GET "+statusURL])
	assert.Equal(t, 8, info["GET "+targetURL])
}

func TestDeterministicHeader(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	const (
		status = "https://api.oline.dk/v1/system/status"
		props  = "https://api.oline.dk/v1/SupplierServices/Properties"
	)
	httpmock.RegisterResponder("GET", status, statusResponder(func() time.Time {
		return time.Unix(1700000005, 0)
	}))

	var got string
	httpmock.RegisterResponder("GET", props, func(req *http.Request) (*http.Response, error) {
		got = req.Header.Get("Authorization")
		return httpmock.NewStringResponse(http.StatusOK, "ok"), nil
	})

	s, err := New(Config{
		StatusURL:  status,
		Credential: testCred,
		Clock:      fixedClock(epoch),
		Signer:     hawk.NewSigner(hawk.NonceFunc(func() (string, error) { return "n0nce1", nil })),
	})
	require.NoError(t, err)

	u, err := url.Parse(props)
	require.NoError(t, err)
	_, err = s.Call(context.Background(), u)
	require.NoError(t, err)

	assert.Equal(t, `Hawk id="supplier-1", ts="1700000005", nonce="n0nce1", mac="sM9Bb8UNlg7AfdIrW+hbk46iSmcu3UEy6gdtuEY35UE=", ext=""`, got)
}

func TestOfflineAfterSyncStopsSigning(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("GET", statusURL, statusResponder(func() time.Time { return epoch }))
	httpmock.RegisterResponder("GET", targetURL, httpmock.NewStringResponder(http.StatusOK, "ok"))

	s := newTestSession(t, fixedClock(epoch.Add(-time.Minute)), nil)
	require.NoError(t, s.Warmup(context.Background()))
	assert.Equal(t, Synced, s.State())

	httpmock.RegisterResponder("GET", statusURL, httpmock.NewStringResponder(http.StatusOK,
		`{"Offline":true,"OffLineMessage":"Back at noon","ServerUtcTime":null}`))
	assert.ErrorIs(t, s.Warmup(context.Background()), ErrServerOffline)
	assert.Equal(t, Offline, s.State())
	assert.Equal(t, time.Minute, s.Skew())

	_, err := s.Call(context.Background(), target(t))
	assert.ErrorIs(t, err, ErrServerOffline)
	assert.Equal(t, 0, httpmock.GetCallCountInfo()["GET "+targetURL])

	// back online: the next call warms up and signs again
	httpmock.RegisterResponder("GET", statusURL, statusResponder(func() time.Time { return epoch }))
	_, err = s.Call(context.Background(), target(t))
	require.NoError(t, err)
	assert.Equal(t, Synced, s.State())
	assert.Equal(t, 1, httpmock.GetCallCountInfo()["GET "+targetURL])
}

func TestStateReadableDuringCall(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	entered := make(chan struct{})
	release := make(chan struct{})
	httpmock.RegisterResponder("GET", statusURL, statusResponder(func() time.Time { return epoch.Add(3 * time.Second) }))
	httpmock.RegisterResponder("GET", targetURL, func(req *http.Request) (*http.Response, error) {
		close(entered)
		<-release
		return httpmock.NewStringResponse(http.StatusOK, "ok"), nil
	})

	s := newTestSession(t, fixedClock(epoch), nil)
	u := target(t)

	called := make(chan error, 1)
	go func() {
		_, err := s.Call(context.Background(), u)
		called <- err
	}()
	<-entered

	read := make(chan struct{})
	var state State
	var skew time.Duration
	go func() {
		state, skew = s.State(), s.Skew()
		close(read)
	}()
	select {
	case <-read:
	case <-time.After(2 * time.Second):
		t.Fatal("state read blocked on the call in flight")
	}
	assert.Equal(t, Synced, state)
	assert.Equal(t, 3*time.Second, skew)

	close(release)
	require.NoError(t, <-called)
}

func TestTraceLogElidesMAC(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	hook := test.NewGlobal()
	prev := log.GetLevel()
	log.SetLevel(log.TraceLevel)
	defer func() {
		log.SetLevel(prev)
		log.StandardLogger().ReplaceHooks(make(log.LevelHooks))
	}()

	var mac string
	httpmock.RegisterResponder("GET", statusURL, statusResponder(func() time.Time { return epoch }))
	httpmock.RegisterResponder("GET", targetURL, func(req *http.Request) (*http.Response, error) {
		h, err := hawk.ParseHeader(req.Header.Get("Authorization"))
		require.NoError(t, err)
		mac = h.MAC
		return httpmock.NewStringResponse(http.StatusOK, "ok"), nil
	})

	s, err := New(Config{
		StatusURL:  statusURL,
		Credential: testCred,
		Clock:      fixedClock(epoch),
		Signer:     hawk.NewSigner(hawk.NonceFunc(func() (string, error) { return "n0nce1", nil })),
	})
	require.NoError(t, err)
	_, err = s.Call(context.Background(), target(t))
	require.NoError(t, err)
	require.NotEmpty(t, mac)

	var logged bool
	for _, e := range hook.AllEntries() {
		assert.NotContains(t, e.Message, mac)
		assert.NotContains(t, e.Message, testCred.Key)
		if e.Level == log.TraceLevel && strings.Contains(e.Message, `nonce="n0nce1"`) {
			logged = true
			assert.Contains(t, e.Message, `id="supplier-1"`)
			assert.Contains(t, e.Message, "ts=1700000000")
		}
	}
	assert.True(t, logged)
}
