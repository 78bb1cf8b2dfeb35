package main

import (
	"context"
	"net/url"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/tinfoilsh/hawkcall/session"
)

type callResult struct {
	At    time.Time `json:"at"`
	Bytes int       `json:"bytes"`
	Error string    `json:"error,omitempty"`
}

// Poller repeats a signed call on a fixed interval
type Poller struct {
	session  *session.Session
	target   *url.URL
	interval time.Duration
	timeout  time.Duration
	onBody   func([]byte)

	last   *callResult
	mutex  sync.Mutex
	ticker *time.Ticker
	done   chan struct{}
	wg     sync.WaitGroup
}

func NewPoller(s *session.Session, target *url.URL, interval, timeout time.Duration, onBody func([]byte)) *Poller {
	return &Poller{
		session:  s,
		target:   target,
		interval: interval,
		timeout:  timeout,
		onBody:   onBody,
		done:     make(chan struct{}),
	}
}

// Start makes one call immediately and then one per interval until Stop
func (p *Poller) Start() {
	p.ticker = time.NewTicker(p.interval)
	p.wg.Add(1)

	go func() {
		defer p.wg.Done()
		p.poll()
		for {
			select {
			case <-p.ticker.C:
				p.poll()
			case <-p.done:
				return
			}
		}
	}()
}

func (p *Poller) Stop() {
	if p.ticker != nil {
		p.ticker.Stop()
		close(p.done)
		p.wg.Wait()
	}
}

// Last returns the outcome of the most recent call, or nil
func (p *Poller) Last() *callResult {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.last == nil {
		return nil
	}
	r := *p.last
	return &r
}

func (p *Poller) poll() {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	res := &callResult{At: time.Now()}
	body, err := p.session.Call(ctx, p.target)
	if err != nil {
		log.Warnf("Call to %s failed: %v", p.target, err)
		res.Error = err.Error()
	} else {
		log.Debugf("Received %d bytes from %s", len(body), p.target)
		res.Bytes = len(body)
		if p.onBody != nil {
			p.onBody(body)
		}
	}

	p.mutex.Lock()
	p.last = res
	p.mutex.Unlock()
}
