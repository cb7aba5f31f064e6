package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watchbook/internal/core"
	"watchbook/internal/events"
)

func TestCreateClientRejectsDuplicateName(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nov2024)

	c, err := e.clients.Create(ctx, core.Client{Name: "Иван", Phone: "0888"})
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)
	assert.NotEmpty(t, c.CreatedAt)

	e.reset()
	_, err = e.clients.Create(ctx, core.Client{Name: "  иван "})
	require.ErrorIs(t, err, core.ErrDuplicateClient)
	assert.Len(t, e.clients.All(), 1)

	notes := e.topics(events.NotificationShow)
	require.Len(t, notes, 1)
	assert.Equal(t, "DuplicateClient", notes[0].Payload.(events.Notification).Kind)
	assert.Equal(t, 1, e.history.UndoCount())
}

func TestRenameClientKeepsUniqueness(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nov2024)

	a, err := e.clients.Create(ctx, core.Client{Name: "Иван"})
	require.NoError(t, err)
	_, err = e.clients.Create(ctx, core.Client{Name: "Мария"})
	require.NoError(t, err)

	name := "МАРИЯ"
	_, err = e.clients.Update(ctx, a.ID, ClientPatch{Name: &name})
	require.ErrorIs(t, err, core.ErrDuplicateClient)

	name = "Иван Петров"
	got, err := e.clients.Update(ctx, a.ID, ClientPatch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Иван Петров", got.Name)

	found, ok := e.clients.ByName("иван петров")
	require.True(t, ok)
	assert.Equal(t, a.ID, found.ID)
}

func TestClientStatsFollowOrders(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nov2024)

	_, err := e.clients.Create(ctx, core.Client{Name: "Иван"})
	require.NoError(t, err)
	_, err = e.orders.Create(ctx, sampleOrder("2024-11-15"))
	require.NoError(t, err)

	st := e.clients.Stats("Иван")
	assert.Equal(t, 1, st.TotalOrders)
	assert.Equal(t, 200.0, st.TotalRevenue)
	assert.Equal(t, 98.2, st.TotalProfit)

	// memo is dropped when another order arrives
	_, err = e.orders.Create(ctx, sampleOrder("2024-10-02"))
	require.NoError(t, err)
	st = e.clients.Stats("иван")
	assert.Equal(t, 2, st.TotalOrders)
	assert.Equal(t, "2024-11-15", st.LastOrder)
}

func TestDeleteClientUndo(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nov2024)

	c, err := e.clients.Create(ctx, core.Client{Name: "Иван"})
	require.NoError(t, err)
	require.NoError(t, e.clients.Delete(ctx, c.ID))
	assert.Empty(t, e.clients.All())

	_, err = e.history.Undo(ctx)
	require.NoError(t, err)
	got, err := e.clients.Get(c.ID)
	require.NoError(t, err)
	assert.Equal(t, c, got)
}
