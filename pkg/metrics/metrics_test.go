package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersOnGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New("codeveda", reg)

	m.AuditEntries.WithLabelValues("create", "code_mapping").Inc()
	m.OutboxEvents.WithLabelValues("processed").Add(3)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.AuditEntries.WithLabelValues("create", "code_mapping")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.OutboxEvents.WithLabelValues("processed")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "codeveda_audit_entries_total")
	assert.Contains(t, names, "codeveda_outbox_events_total")
}

func TestNewNopDoesNotCollide(t *testing.T) {
	assert.NotPanics(t, func() {
		NewNop()
		NewNop()
	})
}
