package service

import (
	"net/http"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"ipintel/internal/utils"
)

// ProbeResult is the outcome of the last upstream reachability check.
type ProbeResult struct {
	Healthy   bool      `json:"healthy"`
	CheckedAt time.Time `json:"checked_at"`
	Error     string    `json:"error,omitempty"`
}

// UpstreamProbe periodically checks that the upstream provider is
// reachable. Any HTTP response counts as reachable; only transport
// failures mark the upstream unhealthy.
type UpstreamProbe struct {
	URL    string
	Client *http.Client

	mu   sync.RWMutex
	last ProbeResult
}

func NewUpstreamProbe(url string) *UpstreamProbe {
	return &UpstreamProbe{
		URL:    url,
		Client: &http.Client{Timeout: 5 * time.Second},
	}
}

func (p *UpstreamProbe) Run() {
	res := ProbeResult{CheckedAt: time.Now().UTC()}

	resp, err := p.Client.Head(p.URL)
	if err != nil {
		res.Error = err.Error()
		utils.Log.Warn("upstream probe failed", utils.Field("error", err.Error()))
	} else {
		_ = resp.Body.Close()
		res.Healthy = true
	}

	p.mu.Lock()
	p.last = res
	p.mu.Unlock()
}

func (p *UpstreamProbe) Last() ProbeResult {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last
}

// Scheduler drives the periodic upstream probe.
type Scheduler struct {
	Cron  *cron.Cron
	Probe *UpstreamProbe
}

func NewScheduler(upstreamURL string) *Scheduler {
	return &Scheduler{
		Cron:  cron.New(),
		Probe: NewUpstreamProbe(upstreamURL),
	}
}

func (s *Scheduler) Start() {
	go s.Probe.Run()

	_, _ = s.Cron.AddFunc("@every 5m", func() {
		s.Probe.Run()
	})

	s.Cron.Start()
	utils.Log.Info("scheduler started")
}

func (s *Scheduler) Stop() {
	s.Cron.Stop()
}
