package flux

import (
	"time"

	"github.com/petrijr/flux/pkg/api"
)

// StepOption configures a single step added through FlowBuilder.
type StepOption func(*api.StepDefinition)

// WithRetries sets the number of retries after the first attempt,
// overriding the engine default. n < 0 is treated as 0.
//
// Example:
//
//	flow.Step("charge", charge, flux.WithRetries(5), flux.WithTimeout(2*time.Second))
func WithRetries(n int) StepOption {
	if n < 0 {
		n = 0
	}
	return func(s *api.StepDefinition) {
		s.Retries = &n
	}
}

// WithTimeout bounds each attempt of the step. Zero keeps the engine default.
func WithTimeout(d time.Duration) StepOption {
	return func(s *api.StepDefinition) {
		s.Timeout = d
	}
}

// When skips the step unless cond returns true.
func When(cond ConditionFunc) StepOption {
	return func(s *api.StepDefinition) {
		s.When = cond
	}
}

// Compensate registers the undo handler run during saga rollback if the
// step completed.
func Compensate(fn CompensateFunc) StepOption {
	return func(s *api.StepDefinition) {
		s.Compensate = fn
	}
}
