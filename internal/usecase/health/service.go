package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
	// Unhealthy indicates total failure.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
	// CheckEmpty indicates an index without trials.
	CheckEmpty CheckResult = "empty"
)

// Report aggregates health check results.
type Report struct {
	Status Status                 `json:"status"`
	Checks map[string]CheckResult `json:"checks"`
}

// Service coordinates health checks.
type Service struct {
	cache     CachePinger
	embedding ProviderChecker
	llm       ProviderChecker
	index     IndexSizer
}

// New creates a Service. Any dependency can be nil and is then skipped.
func New(cache CachePinger, embedding, llm ProviderChecker, index IndexSizer) *Service {
	return &Service{cache: cache, embedding: embedding, llm: llm, index: index}
}

// Check runs health checks against all components. Every check failing
// is unhealthy; some failing is degraded.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	if s.cache != nil {
		checks["cache"] = result(s.cache.Ping(ctx))
	}
	if s.embedding != nil {
		checks["embedding"] = result(s.embedding.HealthCheck(ctx))
	}
	if s.llm != nil {
		checks["llm"] = result(s.llm.HealthCheck(ctx))
	}
	if s.index != nil {
		if s.index.Len() > 0 {
			checks["index"] = CheckOK
		} else {
			checks["index"] = CheckEmpty
		}
	}

	failed := 0
	for _, v := range checks {
		if v != CheckOK {
			failed++
		}
	}
	status := Healthy
	switch {
	case failed > 0 && failed == len(checks):
		status = Unhealthy
	case failed > 0:
		status = Degraded
	}

	return Report{Status: status, Checks: checks}
}

func result(err error) CheckResult {
	if err != nil {
		return CheckError
	}
	return CheckOK
}
