package core

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// healthCheckTimeout bounds all probes together.
const healthCheckTimeout = 2 * time.Second

type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status      string                     `json:"status"`
	Timestamp   time.Time                  `json:"timestamp"`
	Version     string                     `json:"version,omitempty"`
	Environment string                     `json:"environment,omitempty"`
	Checks      map[string]componentStatus `json:"checks,omitempty"`
}

// HandleHealth runs every registered probe concurrently under a shared
// deadline. 200 when all pass, 503 ("degraded") otherwise. Public.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := healthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
	}
	if s.Config != nil {
		resp.Version = s.Config.Build.Version
		resp.Environment = s.Config.Environment
	}

	if len(s.HealthProbes) == 0 {
		JSON(w, r, http.StatusOK, resp)
		return
	}

	results := make([]error, len(s.HealthProbes))
	var g errgroup.Group
	for i, probe := range s.HealthProbes {
		g.Go(func() error {
			results[i] = runProbe(ctx, probe)
			return nil
		})
	}
	_ = g.Wait()

	resp.Checks = make(map[string]componentStatus, len(s.HealthProbes))
	status := http.StatusOK
	for i, probe := range s.HealthProbes {
		if err := results[i]; err != nil {
			status = http.StatusServiceUnavailable
			resp.Status = "degraded"
			resp.Checks[probe.Name()] = componentStatus{Status: "unhealthy", Message: err.Error()}
			continue
		}
		resp.Checks[probe.Name()] = componentStatus{Status: "healthy"}
	}

	if status != http.StatusOK {
		s.Logger.Warn("health check degraded", "checks", resp.Checks)
	}
	JSON(w, r, status, resp)
}

func runProbe(ctx context.Context, p HealthProbe) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("probe panicked: %v", r)
		}
	}()
	return p.Check(ctx)
}

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingProbe adapts a Pinger into a HealthProbe.
type PingProbe struct {
	name   string
	pinger Pinger
}

// NewPingProbe creates a PingProbe reported under name.
func NewPingProbe(name string, p Pinger) *PingProbe {
	return &PingProbe{name: name, pinger: p}
}

func (p *PingProbe) Name() string { return p.name }

func (p *PingProbe) Check(ctx context.Context) error {
	if err := p.pinger.Ping(ctx); err != nil {
		return fmt.Errorf("%s ping failed: %w", p.name, err)
	}
	return nil
}
