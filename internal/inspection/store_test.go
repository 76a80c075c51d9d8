package inspection

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"incmgr/internal/testutil"
)

func sampleRows() []Row {
	return []Row{
		{EntryDate: "15-10-2026", Notice: 2, Item: "ABC.00001", Description: "ONE", QtyReceived: decimal.RequireFromString("1.5"), Supplier: "ACME", PurchaseOrder: 10},
		{EntryDate: "15-10-2026", Notice: 1, Item: "ABC.00002", Description: "TWO", QtyReceived: decimal.NewFromInt(3), Supplier: "ACME", PurchaseOrder: 11},
	}
}

func TestStoreWorklistRoundTrip(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	s := &Store{DB: db}
	uid := testutil.UserID(t, db, "admin")

	rows, err := s.Worklist(ctx, uid)
	require.NoError(t, err)
	assert.Empty(t, rows)

	in := sampleRows()
	in[0].Status = StatusInspected // imported rows always start pending
	require.NoError(t, s.ReplaceWorklist(ctx, uid, in))

	rows, err = s.Worklist(ctx, uid)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "ABC.00001", rows[0].Item)
	assert.Equal(t, StatusPending, rows[0].Status)
	assert.True(t, rows[0].QtyReceived.Equal(decimal.RequireFromString("1.5")))
	assert.Equal(t, "ABC.00002", rows[1].Item)
}

func TestStoreApplyIsExclusive(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	s := &Store{DB: db}
	uid := testutil.UserID(t, db, "admin")
	require.NoError(t, s.ReplaceWorklist(ctx, uid, sampleRows()))

	require.NoError(t, s.Apply(ctx, uid, 0, ActionPostpone))
	require.NoError(t, s.Apply(ctx, uid, 0, ActionInspect))

	rows, err := s.Worklist(ctx, uid)
	require.NoError(t, err)
	assert.True(t, rows[0].Inspected())
	assert.False(t, rows[0].Postponed())
	assert.Equal(t, StatusPending, rows[1].Status)

	err = s.Apply(ctx, uid, 2, ActionInspect)
	assert.ErrorIs(t, err, ErrRowIndex)
}

func TestStoreWorklistsArePerUser(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	s := &Store{DB: db}
	admin := testutil.UserID(t, db, "admin")
	other := testutil.CreateTestUser(t, db, "inspector", "password", "user", true)

	require.NoError(t, s.ReplaceWorklist(ctx, admin, sampleRows()))
	rows, err := s.Worklist(ctx, other)
	require.NoError(t, err)
	assert.Empty(t, rows)

	assert.ErrorIs(t, s.Apply(ctx, other, 0, ActionInspect), ErrRowIndex)
}

func TestStoreSaveRoutine(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	s := &Store{DB: db}
	uid := testutil.UserID(t, db, "admin")

	_, err := s.SaveRoutine(ctx, uid)
	assert.ErrorIs(t, err, ErrEmptyWorklist)

	require.NoError(t, s.ReplaceWorklist(ctx, uid, sampleRows()))
	require.NoError(t, s.Apply(ctx, uid, 0, ActionInspect))

	_, err = s.SaveRoutine(ctx, uid)
	assert.ErrorIs(t, err, ErrIncomplete)

	require.NoError(t, s.Apply(ctx, uid, 1, ActionPostpone))
	rt, err := s.SaveRoutine(ctx, uid)
	require.NoError(t, err)
	assert.NotEmpty(t, rt.ID)
	assert.Len(t, rt.Rows, 2)

	rows, err := s.Worklist(ctx, uid)
	require.NoError(t, err)
	assert.Empty(t, rows, "saving clears the worklist")

	list, err := s.ListRoutines(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, rt.ID, list[0].ID)
	assert.Equal(t, "admin", list[0].Inspector)

	got, err := s.Routine(ctx, rt.ID)
	require.NoError(t, err)
	in, pp := got.Counts()
	assert.Equal(t, 1, in)
	assert.Equal(t, 1, pp)
	assert.True(t, got.Rows[0].QtyReceived.Equal(decimal.RequireFromString("1.5")))

	_, err = s.Routine(ctx, "missing")
	assert.ErrorIs(t, err, ErrRoutineNotFound)
}
