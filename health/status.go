package health

import (
	"fmt"
	"time"
)

// State is the coarse health of one backend or of the whole store
type State string

// Health states
const (
	StateHealthy   State = "healthy"
	StateDegraded  State = "degraded"
	StateUnhealthy State = "unhealthy"
)

// Level maps a state onto the metric gauge scale: 0 unhealthy, 1 degraded, 2 healthy.
func (s State) Level() int {
	switch s {
	case StateHealthy:
		return 2
	case StateDegraded:
		return 1
	default:
		return 0
	}
}

// Status is the result of probing one backend, or the aggregate over several.
type Status struct {
	Component string        `json:"component"`
	Status    State         `json:"status"`
	Message   string        `json:"message"`
	CheckedAt time.Time     `json:"checked_at"`
	Latency   time.Duration `json:"latency_ns,omitempty"`
	Backends  []Status      `json:"backends,omitempty"`
}

// IsHealthy reports whether every probed backend answered
func (s Status) IsHealthy() bool { return s.Status == StateHealthy }

// IsDegraded reports whether some but not all backends answered
func (s Status) IsDegraded() bool { return s.Status == StateDegraded }

// IsUnhealthy reports whether no backend answered
func (s Status) IsUnhealthy() bool { return s.Status == StateUnhealthy }

// Level is the gauge value of the status
func (s Status) Level() int { return s.Status.Level() }

// FromProbe converts the outcome of a backend probe into a Status.
// Error text is sanitized so endpoints and credentials never reach health output.
func FromProbe(name string, err error, latency time.Duration) Status {
	st := Status{
		Component: name,
		Status:    StateHealthy,
		Message:   "backend reachable",
		CheckedAt: time.Now(),
		Latency:   latency,
	}
	if err != nil {
		st.Status = StateUnhealthy
		st.Message = sanitizeErrorMessage(err.Error())
	}
	return st
}

// Aggregate combines backend results: all healthy is healthy, none healthy is
// unhealthy, anything in between is degraded. No backends at all counts as healthy.
func Aggregate(component string, backends []Status) Status {
	st := Status{
		Component: component,
		CheckedAt: time.Now(),
	}
	if len(backends) == 0 {
		st.Status = StateHealthy
		st.Message = "no backends registered"
		return st
	}

	healthy := 0
	for _, b := range backends {
		if b.IsHealthy() {
			healthy++
		}
	}

	switch {
	case healthy == len(backends):
		st.Status = StateHealthy
		st.Message = fmt.Sprintf("all %d backends reachable", healthy)
	case healthy == 0:
		st.Status = StateUnhealthy
		st.Message = "no backend reachable"
	default:
		st.Status = StateDegraded
		st.Message = fmt.Sprintf("%d of %d backends reachable", healthy, len(backends))
	}

	st.Backends = make([]Status, len(backends))
	copy(st.Backends, backends)
	return st
}
