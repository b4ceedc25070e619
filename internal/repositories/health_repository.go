package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	domain "github.com/vastra-shop/api/internal/domain"
)

const defaultDependencyTimeout = 1500 * time.Millisecond

// DependencyCheck verifies one downstream dependency, such as Firestore
// or the secret resolver, for the readiness endpoint.
type DependencyCheck struct {
	Name    string
	Timeout time.Duration
	Check   func(context.Context) error
}

// DependencyHealthOption customises the dependency-backed health repository.
type DependencyHealthOption func(*dependencyHealthRepository)

// WithDependencyTimeout overrides the timeout applied to checks that omit their own.
func WithDependencyTimeout(timeout time.Duration) DependencyHealthOption {
	return func(repo *dependencyHealthRepository) {
		if timeout > 0 {
			repo.defaultTimeout = timeout
		}
	}
}

// WithDependencyClock injects a custom clock primarily for tests.
func WithDependencyClock(clock func() time.Time) DependencyHealthOption {
	return func(repo *dependencyHealthRepository) {
		if clock != nil {
			repo.now = clock
		}
	}
}

type dependencyHealthRepository struct {
	checks         []DependencyCheck
	defaultTimeout time.Duration
	now            func() time.Time
}

var _ HealthRepository = (*dependencyHealthRepository)(nil)

// NewDependencyHealthRepository builds a HealthRepository over the given
// check set. Every check needs a name and a function; a bad check is a
// wiring mistake, so it fails construction rather than every Collect.
func NewDependencyHealthRepository(checks []DependencyCheck, opts ...DependencyHealthOption) (HealthRepository, error) {
	if len(checks) == 0 {
		return nil, errors.New("health repository: at least one dependency check is required")
	}
	for _, check := range checks {
		if strings.TrimSpace(check.Name) == "" {
			return nil, errors.New("health repository: dependency check missing name")
		}
		if check.Check == nil {
			return nil, fmt.Errorf("health repository: dependency %s missing check function", check.Name)
		}
	}

	repo := &dependencyHealthRepository{
		checks:         append([]DependencyCheck(nil), checks...),
		defaultTimeout: defaultDependencyTimeout,
		now:            time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}
	return repo, nil
}

// Collect runs every check concurrently and folds the outcomes into one
// report. The report is error if any check errored, degraded if any
// check degraded, and ok otherwise.
func (r *dependencyHealthRepository) Collect(ctx context.Context) (domain.SystemHealthReport, error) {
	if ctx == nil {
		return domain.SystemHealthReport{}, errors.New("health repository: context is required")
	}

	results := make(map[string]domain.SystemHealthCheck, len(r.checks))
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, check := range r.checks {
		wg.Add(1)
		go func(check DependencyCheck) {
			defer wg.Done()
			outcome := r.runCheck(ctx, check)
			mu.Lock()
			results[check.Name] = outcome
			mu.Unlock()
		}(check)
	}
	wg.Wait()

	return domain.SystemHealthReport{
		Status:      worstStatus(results),
		Checks:      results,
		GeneratedAt: r.now(),
	}, nil
}

func (r *dependencyHealthRepository) runCheck(ctx context.Context, check DependencyCheck) domain.SystemHealthCheck {
	timeout := check.Timeout
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := r.now()
	err := check.Check(checkCtx)
	end := r.now()

	status := domain.HealthStatusOK
	detail := "ok"
	errorString := ""
	switch {
	case err == nil && checkCtx.Err() != nil:
		// The check swallowed its context error; report the timeout anyway.
		status = domain.HealthStatusError
		detail = checkCtx.Err().Error()
		errorString = detail
	case errors.Is(err, context.Canceled):
		status = domain.HealthStatusError
		detail = "cancelled"
		errorString = err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		status = domain.HealthStatusError
		detail = "timeout"
		errorString = err.Error()
	case err != nil:
		status = domain.HealthStatusDegraded
		detail = err.Error()
		errorString = err.Error()
	}

	return domain.SystemHealthCheck{
		Status:    status,
		Detail:    detail,
		Error:     errorString,
		Latency:   end.Sub(start),
		CheckedAt: end,
	}
}

func worstStatus(checks map[string]domain.SystemHealthCheck) string {
	worst := domain.HealthStatusOK
	for _, check := range checks {
		switch check.Status {
		case domain.HealthStatusError:
			return domain.HealthStatusError
		case domain.HealthStatusDegraded:
			worst = domain.HealthStatusDegraded
		}
	}
	return worst
}
