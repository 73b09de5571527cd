package jobs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestRetention_SweepRemovesOldTerminalGroups(t *testing.T) {
	h, finished := newIdleHarness(t)
	_, err := h.service.CancelGroup(t.Context(), finished.Group.ID)
	require.NoError(t, err)

	h.sheets.add("active.xlsx", fakeSheet{name: "Live", rows: rows(3, nil)})
	active, err := h.service.CreateGroup(t.Context(), h.request("active.xlsx"))
	require.NoError(t, err)

	retention := NewRetention(h.service.coordinator, h.service.store, "", time.Hour, arbor.NewLogger())

	assert.Empty(t, retention.Sweep(t.Context(), time.Now()), "recently finished groups are kept")

	removed := retention.Sweep(t.Context(), time.Now().Add(2*time.Hour))
	assert.Equal(t, []string{finished.Group.ID}, removed)

	_, err = h.service.Group(active.Group.ID)
	assert.NoError(t, err, "active groups are never swept")
}

func TestRetention_StartWithoutScheduleIsNoop(t *testing.T) {
	h := newHarness(t, 1)
	retention := NewRetention(h.service.coordinator, h.service.store, "", time.Hour, arbor.NewLogger())
	require.NoError(t, retention.Start())
	retention.Stop()
}

func TestRetention_StartRejectsBadSchedule(t *testing.T) {
	h := newHarness(t, 1)
	retention := NewRetention(h.service.coordinator, h.service.store, "not a schedule", time.Hour, arbor.NewLogger())
	assert.Error(t, retention.Start())
}
