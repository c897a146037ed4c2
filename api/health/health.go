// Package health implements the liveness and readiness probes polled by
// container orchestrators.
package health

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

const (
	StatusOK       = "ok"
	StatusReady    = "ready"
	StatusNotReady = "not ready"
)

// ProbeResponse is the body of every probe.
type ProbeResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime,omitempty"`
}

// Probe tracks whether the server may receive traffic.
type Probe struct {
	ready   atomic.Bool
	started time.Time
	now     func() time.Time
}

func NewProbe() *Probe {
	return &Probe{started: time.Now(), now: time.Now}
}

// SetReady marks the server ready or draining.
func (p *Probe) SetReady(ready bool) {
	p.ready.Store(ready)
}

func (p *Probe) Ready() bool {
	return p.ready.Load()
}

// Live answers as long as the process can serve requests at all.
func (p *Probe) Live(w http.ResponseWriter, r *http.Request) {
	uptime := p.now().Sub(p.started).Truncate(time.Second)
	writeProbe(w, http.StatusOK, ProbeResponse{Status: StatusOK, Uptime: uptime.String()})
}

// Readiness answers 503 until the listener is bound and again while
// shutting down.
func (p *Probe) Readiness(w http.ResponseWriter, r *http.Request) {
	if !p.Ready() {
		writeProbe(w, http.StatusServiceUnavailable, ProbeResponse{Status: StatusNotReady})
		return
	}
	writeProbe(w, http.StatusOK, ProbeResponse{Status: StatusReady})
}

func writeProbe(w http.ResponseWriter, status int, resp ProbeResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
