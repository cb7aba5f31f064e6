package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watchbook/internal/core"
	"watchbook/internal/events"
	"watchbook/internal/storage"
)

func sampleOrder(date string) core.Order {
	return core.Order{
		Date:        date,
		Client:      "Иван",
		Origin:      "OLX",
		Vendor:      "A",
		Model:       "Rolex",
		CostUSD:     100,
		ShippingUSD: 10,
		ExtrasEUR:   5,
		SellEUR:     200,
		Status:      core.StatusDelivered,
	}
}

func TestCreateOrder(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nov2024)

	o, err := e.orders.Create(ctx, sampleOrder("2024-11-15"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), o.ID)
	assert.Equal(t, core.MonthKey("2024-11"), o.MonthKey)
	assert.Equal(t, 101.8, o.TotalEUR)
	assert.Equal(t, 98.2, o.BalanceEUR)

	o2, err := e.orders.Create(ctx, sampleOrder("2024-10-01"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), o2.ID)

	assert.Len(t, e.orders.ForMonth("2024-11"), 1)
	assert.Len(t, e.orders.All(), 2)

	created := e.topics(events.OrderCreated)
	require.Len(t, created, 2)
	assert.Equal(t, core.MonthKey("2024-10"), created[1].Payload.(OrderEvent).CreatedInMonth)

	months := e.months.Available()
	require.Len(t, months, 2)
	assert.Equal(t, core.MonthKey("2024-10"), months[0].Key)
}

func TestCreateOrderRejectsBadDate(t *testing.T) {
	e := newEnv(t, nov2024)
	_, err := e.orders.Create(context.Background(), sampleOrder("15.11.2024"))
	require.Error(t, err)
	assert.Empty(t, e.orders.All())
	assert.Len(t, e.topics(events.NotificationShow), 1)
	assert.False(t, e.history.CanUndo())
}

func TestOrderMoveUndoRedo(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nov2024)

	o, err := e.orders.Create(ctx, sampleOrder("2024-10-20"))
	require.NoError(t, err)
	afterCreate := e.deps.Hub.Snapshot()

	date := "2024-11-05"
	_, err = e.orders.Update(ctx, o.ID, OrderPatch{Date: &date})
	require.NoError(t, err)
	afterMove := e.deps.Hub.Snapshot()

	updated := e.topics(events.OrderUpdated)
	require.Len(t, updated, 1)
	ev := updated[0].Payload.(OrderEvent)
	assert.Equal(t, core.MonthKey("2024-11"), ev.MovedToMonth)
	assert.Equal(t, core.MonthKey("2024-10"), ev.PreviousMonth)

	_, err = e.history.Undo(ctx)
	require.NoError(t, err)
	ref, err := e.orders.FindByID(o.ID)
	require.NoError(t, err)
	assert.Equal(t, core.MonthKey("2024-10"), ref.MonthKey)
	assert.Equal(t, "2024-10-20", ref.Order.Date)
	require.Equal(t, afterCreate, e.deps.Hub.Snapshot())
	assert.Empty(t, e.orders.ForMonth("2024-11"))

	_, err = e.history.Redo(ctx)
	require.NoError(t, err)
	ref, err = e.orders.FindByID(o.ID)
	require.NoError(t, err)
	assert.Equal(t, core.MonthKey("2024-11"), ref.MonthKey)
	require.Equal(t, afterMove, e.deps.Hub.Snapshot())
	assert.Len(t, e.topics(events.HistoryUndo), 1)
	assert.Len(t, e.topics(events.HistoryRedo), 1)
}

func TestOrderIDsAreNotReusedAfterDelete(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nov2024)

	_, err := e.orders.Create(ctx, sampleOrder("2024-11-01"))
	require.NoError(t, err)
	last, err := e.orders.Create(ctx, sampleOrder("2024-11-02"))
	require.NoError(t, err)
	require.Equal(t, int64(2), last.ID)

	require.NoError(t, e.orders.Delete(ctx, last.ID))
	assert.Equal(t, int64(2), e.deps.Hub.Snapshot().Settings.LastOrderID)

	next, err := e.orders.Create(ctx, sampleOrder("2024-11-03"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), next.ID)

	_, err = e.history.Undo(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), e.deps.Hub.Snapshot().Settings.LastOrderID)
	_, err = e.history.Redo(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), e.deps.Hub.Snapshot().Settings.LastOrderID)
}

func TestDeleteOrderNotFound(t *testing.T) {
	e := newEnv(t, nov2024)
	err := e.orders.Delete(context.Background(), 42)
	assert.True(t, errors.Is(err, core.ErrNotFound))
}

func TestQuotaRollsBackMutation(t *testing.T) {
	ctx := context.Background()
	e := newEnvWithMedium(t, nov2024, storage.NewMemoryMedium(64))

	_, err := e.orders.Create(ctx, sampleOrder("2024-11-15"))
	require.ErrorIs(t, err, core.ErrQuotaExceeded)
	assert.Empty(t, e.orders.All())
	assert.Empty(t, e.deps.Hub.Snapshot().MonthlyData)

	notes := e.topics(events.NotificationShow)
	require.Len(t, notes, 1)
	assert.Equal(t, "QuotaExceeded", notes[0].Payload.(events.Notification).Kind)
	assert.Empty(t, e.topics(events.OrderCreated))
}

func TestDraftUsesFactoryShipping(t *testing.T) {
	e := newEnv(t, nov2024)
	d := e.orders.Draft("2024-11-01")
	assert.Equal(t, core.DefaultFactoryShipping, d.ShippingUSD)
	assert.Equal(t, core.StatusPending, d.Status)
}

func TestStatusClass(t *testing.T) {
	tests := []struct {
		status core.OrderStatus
		want   string
	}{
		{core.StatusPending, "status-pending"},
		{core.StatusDelivered, "status-delivered"},
		{core.StatusFree, "status-free"},
		{core.StatusOther, "status-other"},
		{"", "status-other"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusClass(tt.status), string(tt.status))
	}
}
