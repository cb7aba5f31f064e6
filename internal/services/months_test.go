package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watchbook/internal/core"
	"watchbook/internal/events"
	"watchbook/internal/state"
)

func TestSelectMonth(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nov2024)
	assert.Equal(t, core.MonthKey("2024-11"), e.months.Current())

	require.NoError(t, e.months.Select(ctx, "2024-09"))
	assert.Equal(t, core.MonthKey("2024-09"), e.months.Current())
	assert.Equal(t, []core.MonthEntry{{Key: "2024-09", Name: core.MonthKey("2024-09").Name()}}, e.months.Available())
	assert.Len(t, e.topics(events.StateChanged(state.KeyCurrentMonth)), 1)
	assert.False(t, e.history.CanUndo())

	err := e.months.Select(ctx, "2024-13")
	require.ErrorIs(t, err, core.ErrInvalidMonth)
	assert.Equal(t, core.MonthKey("2024-09"), e.months.Current())
}

func TestHistoryErrorsNotify(t *testing.T) {
	e := newEnv(t, nov2024)
	_, err := e.history.Undo(context.Background())
	require.ErrorIs(t, err, core.ErrNothingToUndo)
	assert.Len(t, e.topics(events.NotificationShow), 1)
}
