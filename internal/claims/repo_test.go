package claims

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/splittab/splittab-backend/pkg/db/models"
	dbtypes "github.com/splittab/splittab-backend/pkg/db/types"
)

func setupSelectionsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	selections := `
CREATE TABLE IF NOT EXISTS selections (
  id TEXT PRIMARY KEY,
  bill_id TEXT NOT NULL,
  session_id TEXT,
  display_name TEXT NOT NULL,
  items TEXT NOT NULL,
  tip_cents INTEGER NOT NULL DEFAULT 0,
  payment_method TEXT,
  paid INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(selections).Error)
	return db
}

func newSelection(billID uuid.UUID, sessionID string, items dbtypes.ItemQuantities) *models.Selection {
	selection := &models.Selection{
		ID:          uuid.New(),
		BillID:      billID,
		DisplayName: "Ana",
		Items:       items,
	}
	if sessionID != "" {
		selection.SessionID = &sessionID
	}
	return selection
}

func TestRepositoryReplaceForSession(t *testing.T) {
	db := setupSelectionsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	billID := uuid.New()
	itemA := uuid.NewString()
	itemB := uuid.NewString()

	first := newSelection(billID, "sess-1", dbtypes.ItemQuantities{itemA: 2})
	require.NoError(t, repo.ReplaceForSession(ctx, first))

	second := newSelection(billID, "sess-1", dbtypes.ItemQuantities{itemB: 1.5})
	second.TipCents = 300
	require.NoError(t, repo.ReplaceForSession(ctx, second))

	stored, err := repo.ListByBill(ctx, billID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, second.ID, stored[0].ID)
	assert.Equal(t, int64(300), stored[0].TipCents)
	assert.InDelta(t, 1.5, stored[0].Items[itemB], 0)
	_, hadOld := stored[0].Items[itemA]
	assert.False(t, hadOld)

	// A different session does not replace.
	other := newSelection(billID, "sess-2", dbtypes.ItemQuantities{itemA: 1})
	require.NoError(t, repo.ReplaceForSession(ctx, other))
	stored, err = repo.ListByBill(ctx, billID)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestRepositoryReplaceForSessionRequiresSession(t *testing.T) {
	db := setupSelectionsTestDB(t)
	repo := NewRepository(db)

	err := repo.ReplaceForSession(context.Background(), newSelection(uuid.New(), "", dbtypes.ItemQuantities{uuid.NewString(): 1}))
	require.Error(t, err)
}

func TestRepositoryCreateKeepsSessionlessRows(t *testing.T) {
	db := setupSelectionsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	billID := uuid.New()
	item := uuid.NewString()
	require.NoError(t, repo.Create(ctx, newSelection(billID, "", dbtypes.ItemQuantities{item: 1})))
	require.NoError(t, repo.Create(ctx, newSelection(billID, "", dbtypes.ItemQuantities{item: 1})))

	stored, err := repo.ListByBill(ctx, billID)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestRepositorySetPaid(t *testing.T) {
	db := setupSelectionsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	billID := uuid.New()
	selection := newSelection(billID, "sess-1", dbtypes.ItemQuantities{uuid.NewString(): 1})
	require.NoError(t, repo.Create(ctx, selection))

	require.NoError(t, repo.SetPaid(ctx, billID, selection.ID, true))
	loaded, err := repo.GetByID(ctx, billID, selection.ID)
	require.NoError(t, err)
	assert.True(t, loaded.Paid)

	err = repo.SetPaid(ctx, billID, uuid.New(), true)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	// Scoped to the bill: the right id under the wrong bill is not found.
	err = repo.SetPaid(ctx, uuid.New(), selection.ID, true)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepositoryAnyReferencingItem(t *testing.T) {
	db := setupSelectionsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	billID := uuid.New()
	claimed := uuid.New()
	unclaimed := uuid.New()
	require.NoError(t, repo.Create(ctx, newSelection(billID, "sess-1", dbtypes.ItemQuantities{claimed.String(): 2})))

	got, err := repo.AnyReferencingItem(ctx, billID, claimed)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = repo.AnyReferencingItem(ctx, billID, unclaimed)
	require.NoError(t, err)
	assert.False(t, got)
}
