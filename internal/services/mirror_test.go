package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watchbook/internal/core"
	"watchbook/internal/events"
	"watchbook/internal/log"
	"watchbook/internal/sheets"
	"watchbook/internal/sheets/memory"
)

func TestMirrorCopiesDomainChanges(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nov2024)
	rows := memory.New()
	m := NewMirror(rows, e.deps.Hub, e.deps.Bus, log.Nop())
	m.Start()
	defer m.Stop()

	o, err := e.orders.Create(ctx, sampleOrder("2024-11-15"))
	require.NoError(t, err)
	c, err := e.clients.Create(ctx, core.Client{Name: "Иван"})
	require.NoError(t, err)
	_, err = e.expenses.InitializeMonth(ctx, "2024-11")
	require.NoError(t, err)

	orders, err := rows.List(ctx, sheets.TableOrders)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "2024-11", orders[0]["month_key"])

	clients, err := rows.List(ctx, sheets.TableClients)
	require.NoError(t, err)
	require.Len(t, clients, 1)
	assert.Equal(t, c.ID, clients[0].ID())

	expenses, err := rows.List(ctx, sheets.TableExpenses)
	require.NoError(t, err)
	assert.Len(t, expenses, len(BuiltinTemplate()))
	for _, r := range expenses {
		assert.Equal(t, true, r["is_default"])
	}

	require.NoError(t, e.orders.Delete(ctx, o.ID))
	orders, err = rows.List(ctx, sheets.TableOrders)
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.Zero(t, m.Failures())
}

type failingRows struct{ sheets.RowStore }

var errRemoteDown = errors.New("remote down")

func (failingRows) Upsert(context.Context, sheets.Table, sheets.Row) error { return errRemoteDown }

func TestMirrorFailureKeepsLocalState(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nov2024)
	m := NewMirror(failingRows{memory.New()}, e.deps.Hub, e.deps.Bus, log.Nop())
	m.Start()
	defer m.Stop()

	_, err := e.clients.Create(ctx, core.Client{Name: "Иван"})
	require.NoError(t, err)
	assert.Len(t, e.clients.All(), 1)
	assert.Equal(t, 1, m.Failures())

	notes := e.topics(events.NotificationShow)
	require.Len(t, notes, 1)
	assert.Equal(t, errRemoteDown.Error(), notes[0].Payload.(events.Notification).Message)
}

func TestMirrorSyncAll(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nov2024)
	_, err := e.orders.Create(ctx, sampleOrder("2024-11-15"))
	require.NoError(t, err)
	_, err = e.clients.Create(ctx, core.Client{Name: "Иван"})
	require.NoError(t, err)

	rows := memory.New()
	m := NewMirror(rows, e.deps.Hub, e.deps.Bus, log.Nop())
	require.NoError(t, m.SyncAll(ctx))

	for table, want := range map[sheets.Table]int{
		sheets.TableOrders:   1,
		sheets.TableClients:  1,
		sheets.TableSettings: 1,
	} {
		got, err := rows.List(ctx, table)
		require.NoError(t, err)
		assert.Len(t, got, want, string(table))
	}
}
