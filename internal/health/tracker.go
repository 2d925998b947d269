package health

import (
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/ncecere/imagegen_gateway/internal/providers"
)

// Tracker records recent attempt outcomes per provider for operator
// visibility. It is written by the dispatcher and read by /healthz; nothing
// consults it when choosing which provider to call.
type Tracker struct {
	mu    sync.RWMutex
	order []string
	state map[string]*providerState
	now   func() time.Time
}

type providerState struct {
	consecutiveFailures int
	lastOutcome         providers.OutcomeKind
	lastAttempt         time.Time
	lastSuccess         time.Time
}

const (
	// failureThreshold consecutive failures mark a provider degraded.
	failureThreshold = 3
)

// ProviderStatus is the public snapshot of one provider.
type ProviderStatus struct {
	Name                string     `json:"name"`
	Status              string     `json:"status"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastOutcome         string     `json:"last_outcome,omitempty"`
	LastAttemptAt       *time.Time `json:"last_attempt_at,omitempty"`
	LastSuccessAt       *time.Time `json:"last_success_at,omitempty"`
}

func NewTracker(chain []providers.Spec) *Tracker {
	t := &Tracker{
		state: make(map[string]*providerState, len(chain)),
		now:   time.Now,
	}
	for _, spec := range chain {
		t.order = append(t.order, spec.Name)
		t.state[spec.Name] = &providerState{}
	}
	return t
}

// Report records the outcome of one attempt.
func (t *Tracker) Report(provider string, outcome providers.OutcomeKind) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.state[provider]
	if st == nil {
		st = &providerState{}
		t.state[provider] = st
		t.order = append(t.order, provider)
	}
	now := t.now()
	st.lastAttempt = now
	st.lastOutcome = outcome
	if outcome == providers.OutcomeSuccess {
		st.consecutiveFailures = 0
		st.lastSuccess = now
		return
	}
	st.consecutiveFailures++
}

// Snapshot returns provider statuses in chain order.
func (t *Tracker) Snapshot() []ProviderStatus {
	if t == nil {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	return lo.Map(t.order, func(name string, _ int) ProviderStatus {
		st := t.state[name]
		status := ProviderStatus{
			Name:                name,
			Status:              "unknown",
			ConsecutiveFailures: st.consecutiveFailures,
			LastOutcome:         string(st.lastOutcome),
		}
		if !st.lastAttempt.IsZero() {
			at := st.lastAttempt
			status.LastAttemptAt = &at
			status.Status = "ok"
			if st.consecutiveFailures >= failureThreshold {
				status.Status = "degraded"
			}
		}
		if !st.lastSuccess.IsZero() {
			at := st.lastSuccess
			status.LastSuccessAt = &at
		}
		return status
	})
}
