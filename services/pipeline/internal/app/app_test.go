package app

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hotelplan/pkg/domain"
	"hotelplan/pkg/store"
)

func TestQueuedFollowUpStagesReachCompliant(t *testing.T) {
	mr := miniredis.RunT(t)
	s := store.NewMemoryStore()
	now := time.Now().UTC()
	require.NoError(t, s.CreateProject(store.ProjectSeed{
		Project: domain.Project{ID: "p1", OwnerID: "u1", Name: "Hotel", Status: domain.StatusDraft, CreatedAt: now, UpdatedAt: now},
		Floors: []domain.Floor{{ID: "f1", ProjectID: "p1", Name: "Floor 1", Level: 1, Rooms: []domain.RoomConfiguration{
			{RoomTypeID: domain.AccessibleRoomTypeID, Quantity: 2},
			{RoomTypeID: "standard-queen", Quantity: 18},
		}}},
		PublicAreas: []domain.PublicArea{{ID: domain.LobbyAreaID, ProjectID: "p1", AreaType: "Lobby", SizeSqft: 800}},
	}))

	a, err := New(Config{Store: s, RedisAddr: mr.Addr(), QueueName: "test:pipeline", QueueConcurrency: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	require.NoError(t, a.DesignChanged(ctx, "p1"))
	p, _, _ := s.GetProject("p1")
	assert.Equal(t, domain.StatusNeedsRecalc, p.Status, "recalculation is queued, not run inline")

	a.Start(ctx)
	require.Eventually(t, func() bool {
		p, _, _ := s.GetProject("p1")
		return p.Status == domain.StatusCompliant
	}, 10*time.Second, 50*time.Millisecond)

	rows, err := s.ListCostSummaries("p1", 0)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	_, err := New(Config{StoreDriver: "sqlite"})
	assert.Error(t, err)

	_, err = New(Config{StoreDriver: "postgres"})
	assert.Error(t, err, "postgres needs a database URL")
}
