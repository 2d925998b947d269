package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ncecere/imagegen_gateway/internal/providers"
)

func TestTrackerDegradesAfterConsecutiveFailures(t *testing.T) {
	tracker := NewTracker([]providers.Spec{{Name: "a"}, {Name: "b"}})
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tracker.now = func() time.Time { return base }

	for i := 0; i < failureThreshold; i++ {
		tracker.Report("a", providers.OutcomeUpstreamError)
	}

	snap := tracker.Snapshot()
	require.Len(t, snap, 2)
	require.Equal(t, "a", snap[0].Name)
	require.Equal(t, "degraded", snap[0].Status)
	require.Equal(t, failureThreshold, snap[0].ConsecutiveFailures)
	require.Equal(t, "upstream_error", snap[0].LastOutcome)
	require.Nil(t, snap[0].LastSuccessAt)

	require.Equal(t, "b", snap[1].Name)
	require.Equal(t, "unknown", snap[1].Status)
	require.Nil(t, snap[1].LastAttemptAt)

	tracker.Report("a", providers.OutcomeSuccess)
	snap = tracker.Snapshot()
	require.Equal(t, "ok", snap[0].Status)
	require.Zero(t, snap[0].ConsecutiveFailures)
	require.NotNil(t, snap[0].LastSuccessAt)
	require.Equal(t, base, *snap[0].LastSuccessAt)
}

func TestTrackerAcceptsUnknownProviders(t *testing.T) {
	tracker := NewTracker(nil)
	tracker.Report("late", providers.OutcomeTransportFailure)

	snap := tracker.Snapshot()
	require.Len(t, snap, 1)
	require.Equal(t, "late", snap[0].Name)
	require.Equal(t, 1, snap[0].ConsecutiveFailures)
}

func TestNilTrackerIsSafe(t *testing.T) {
	var tracker *Tracker
	tracker.Report("a", providers.OutcomeSuccess)
	require.Nil(t, tracker.Snapshot())
}
