package service

import (
	"context"
	"testing"
	"time"

	"github.com/psds-microservice/field-service/internal/database"
	"github.com/psds-microservice/field-service/internal/errs"
	"github.com/psds-microservice/field-service/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

func newPostgresService(t *testing.T) *TicketService {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("field_service"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	url, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, database.MigrateUp(ctx, url))

	db, err := database.Open(url)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close(db) })
	return NewTicketService(db)
}

func TestTicketLifecyclePostgres(t *testing.T) {
	svc := newPostgresService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, &model.Ticket{
		ID:          "T100",
		ElevatorID:  "E1",
		Location:    "B1",
		Description: "door won't close",
		Status:      model.TicketStatusPending,
		Priority:    model.TicketPriorityHigh,
		Images:      []string{},
	})
	require.NoError(t, err)

	got, err := svc.GetByID(ctx, "T100")
	require.NoError(t, err)
	assert.Equal(t, model.TicketStatusPending, got.Status)
	assert.Nil(t, got.CloseTime)
	assert.True(t, created.CreateTime.Equal(got.CreateTime))

	_, err = svc.Create(ctx, created.Clone())
	assert.True(t, errs.IsValidation(err), "duplicate id")

	closed, changed, err := svc.Close(ctx, "T100", "replaced sensor", "fixed")
	require.NoError(t, err)
	assert.True(t, changed)

	again, changed, err := svc.Close(ctx, "T100", "other", "other")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, "replaced sensor", *again.Solution)
	assert.True(t, closed.CloseTime.Equal(*again.CloseTime))

	got, err = svc.GetByID(ctx, "T100")
	require.NoError(t, err)
	assert.Equal(t, model.TicketStatusClosed, got.Status)
	require.NotNil(t, got.CloseTime)
	assert.Equal(t, "fixed", *got.Result)
	assert.True(t, got.CreateTime.Equal(created.CreateTime), "create_time is immutable")
}

func TestTicketUpdateAndImagesPostgres(t *testing.T) {
	svc := newPostgresService(t)
	ctx := context.Background()

	for i, id := range []string{"A", "B", "C"} {
		_, err := svc.Create(ctx, &model.Ticket{
			ID: id, ElevatorID: "E1", Location: "L", Description: "d",
			Status: model.TicketStatusPending, Priority: model.TicketPriorityLow,
			CreateTime: time.Date(2025, 1, 1, 0, i, 0, 0, time.UTC),
		})
		require.NoError(t, err)
	}

	closed := model.TicketStatusClosed
	upd, err := svc.Update(ctx, "B", model.TicketUpdate{Status: &closed})
	require.NoError(t, err)
	assert.NotNil(t, upd.CloseTime)

	now := time.Now()
	_, err = svc.Update(ctx, "A", model.TicketUpdate{CloseTime: &now})
	assert.True(t, errs.IsValidation(err))

	_, err = svc.AddImage(ctx, "A", "https://x/1.jpg")
	require.NoError(t, err)
	tk, err := svc.AddImage(ctx, "A", "https://x/1.jpg")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://x/1.jpg"}, tk.Images)

	pending, total, err := svc.List(ctx, ListFilter{Status: string(model.TicketStatusPending)})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, pending, 2)
	assert.Equal(t, "A", pending[0].ID)
	assert.Equal(t, "C", pending[1].ID)

	counts, err := svc.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"Pending": 2, "Closed": 1}, counts)
}
