package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure. Ranking still works on the hash fallback
	// when only the embedding check fails.
	Degraded Status = "degraded"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
	// Artifacts is nil when no counter is wired or counting failed.
	Artifacts *int
	Provider  string
	Store     string
}

// Service coordinates health checks.
type Service struct {
	store     StorePinger
	embedding EmbeddingChecker
	counter   ArtifactCounter
	provider  string
	storeName string
}

// New creates a Service. embedding can be nil.
func New(store StorePinger, embedding EmbeddingChecker) *Service {
	return &Service{store: store, embedding: embedding}
}

// WithCounter attaches an artifact counter reported alongside the checks.
func (s *Service) WithCounter(c ArtifactCounter) *Service {
	s.counter = c
	return s
}

// WithNames sets the provider and store names reported in the response.
func (s *Service) WithNames(provider, store string) *Service {
	s.provider, s.storeName = provider, store
	return s
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	if err := s.store.Ping(ctx); err != nil {
		checks["store"] = CheckError
	} else {
		checks["store"] = CheckOK
	}

	if s.embedding != nil {
		if err := s.embedding.HealthCheck(ctx); err != nil {
			checks["embedding"] = CheckError
		} else {
			checks["embedding"] = CheckOK
		}
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}

	r := Report{Status: status, Checks: checks, Provider: s.provider, Store: s.storeName}
	if s.counter != nil && checks["store"] == CheckOK {
		if n, err := s.counter.Count(ctx); err == nil {
			r.Artifacts = &n
		}
	}
	return r
}
