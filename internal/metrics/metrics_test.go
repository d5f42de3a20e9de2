package metrics_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nyx-io/nyx/internal/metrics"
)

func TestRegistryRecordsWithoutPanicking(t *testing.T) {
	reg := metrics.NewRegistry()
	require.NotPanics(t, func() {
		reg.RecordIteration(0.001)
		reg.SetActiveHandles(3)
		reg.SetInflightRequests(1)
		reg.SetPoolStats(2, 4)
		reg.RecordProcessSpawned()
		reg.RecordProcessExited()
	})
}

// TestTwoRegistriesDoNotCollide checks that building a second Registry
// doesn't panic from a duplicate Prometheus metric registration, which
// would happen if NewRegistry ever registered against the global
// DefaultRegisterer instead of a fresh *prometheus.Registry.
func TestTwoRegistriesDoNotCollide(t *testing.T) {
	require.NotPanics(t, func() {
		metrics.NewRegistry()
		metrics.NewRegistry()
	})
}
