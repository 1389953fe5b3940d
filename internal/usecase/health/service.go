// Package health aggregates component availability checks.
package health

import "context"

// ConfigStorePinger checks the configuration store.
type ConfigStorePinger interface {
	Ping(ctx context.Context) error
}

// SearchPinger checks the search index.
type SearchPinger interface {
	Ping(ctx context.Context) error
}

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
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
	Status Status                 `json:"status"`
	Checks map[string]CheckResult `json:"checks"`
}

// Service coordinates health checks.
type Service struct {
	configStore ConfigStorePinger
	search      SearchPinger
}

// New creates a Service. Either pinger may be nil when that component is not
// wired in a deployment.
func New(configStore ConfigStorePinger, search SearchPinger) *Service {
	return &Service{configStore: configStore, search: search}
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	if s.configStore != nil {
		if err := s.configStore.Ping(ctx); err != nil {
			checks["configstore"] = CheckError
		} else {
			checks["configstore"] = CheckOK
		}
	}

	if s.search != nil {
		if err := s.search.Ping(ctx); err != nil {
			checks["search"] = CheckError
		} else {
			checks["search"] = CheckOK
		}
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}

	return Report{Status: status, Checks: checks}
}
