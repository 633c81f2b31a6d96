package health

import (
	"context"
	"sort"
	"sync"
	"time"
)

const checkTimeout = 2 * time.Second

// CheckFunc probes one dependency.
type CheckFunc func(ctx context.Context) error

// Service encapsulates health-related checks.
type Service struct {
	mu     sync.RWMutex
	checks map[string]CheckFunc
}

// NewService constructs a new health service.
func NewService() *Service {
	return &Service{checks: make(map[string]CheckFunc)}
}

// Register adds a named dependency probe. A nil check is ignored.
func (s *Service) Register(name string, check CheckFunc) {
	if check == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = check
}

// Report is the result of running every registered probe.
type Report struct {
	OK     bool              `json:"ok"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Status runs all probes concurrently, each bounded by a short timeout.
func (s *Service) Status(ctx context.Context) Report {
	s.mu.RLock()
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	s.mu.RUnlock()
	sort.Strings(names)

	report := Report{OK: true, Checks: make(map[string]string, len(names))}
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, name := range names {
		s.mu.RLock()
		check := s.checks[name]
		s.mu.RUnlock()
		wg.Add(1)
		go func(name string, check CheckFunc) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			status := "ok"
			if err := check(checkCtx); err != nil {
				status = err.Error()
			}
			mu.Lock()
			defer mu.Unlock()
			report.Checks[name] = status
			if status != "ok" {
				report.OK = false
			}
		}(name, check)
	}
	wg.Wait()
	return report
}
