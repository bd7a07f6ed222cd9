package resource

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/not-mt/zapd/errors"
	zapdtest "github.com/not-mt/zapd/internal/testing"
	"github.com/not-mt/zapd/internal/util"
)

func TestGadgetStore_CreateAndGet(t *testing.T) {
	db := zapdtest.CreateTestDB(t)
	store := NewGadgetStore()
	ctx := context.Background()

	created, err := store.Create(ctx, db, &Record{
		Name:   "sprocket",
		Height: util.Ptr("3cm"),
		Force:  5,
	})
	require.NoError(t, err)
	require.NotZero(t, created.ID)

	got, err := store.GetByID(ctx, db, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "sprocket", got.Name)
	require.NotNil(t, got.Height)
	assert.Equal(t, "3cm", *got.Height)
	assert.Nil(t, got.Mass)
	assert.Equal(t, int64(5), got.Force)
}

func TestGadgetStore_DocumentStoredAsJSON(t *testing.T) {
	db := zapdtest.CreateTestDB(t)
	store := NewGadgetStore()
	ctx := context.Background()

	created, err := store.Create(ctx, db, &Record{Name: "probe", Force: 1})
	require.NoError(t, err)

	// The document is queryable through json1, not just through Go
	var name string
	err = db.QueryRow(
		"SELECT json_extract(doc, '$.name') FROM gadgets WHERE id = ?", created.ID,
	).Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "probe", name)
}

func TestGadgetStore_GetMissing(t *testing.T) {
	db := zapdtest.CreateTestDB(t)
	store := NewGadgetStore()

	_, err := store.GetByID(context.Background(), db, 12345)
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestGadgetStore_List(t *testing.T) {
	db := zapdtest.CreateTestDB(t)
	store := NewGadgetStore()
	ctx := context.Background()

	for _, name := range []string{"alpha", "beta"} {
		_, err := store.Create(ctx, db, &Record{Name: name})
		require.NoError(t, err)
	}

	all, err := store.List(ctx, db, 10, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "alpha", all[0].Name)
	assert.Equal(t, "beta", all[1].Name)
}

func TestGadgetStore_Update(t *testing.T) {
	db := zapdtest.CreateTestDB(t)
	store := NewGadgetStore()
	ctx := context.Background()

	created, err := store.Create(ctx, db, &Record{Name: "draft"})
	require.NoError(t, err)

	created.Name = "final"
	created.Mass = util.Ptr("2kg")
	updated, err := store.Update(ctx, db, created)
	require.NoError(t, err)
	assert.Equal(t, "final", updated.Name)
	require.NotNil(t, updated.Mass)
	assert.Equal(t, "2kg", *updated.Mass)

	_, err = store.Update(ctx, db, &Record{ID: 12345, Name: "ghost"})
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestGadgetStore_Delete(t *testing.T) {
	db := zapdtest.CreateTestDB(t)
	store := NewGadgetStore()
	ctx := context.Background()

	created, err := store.Create(ctx, db, &Record{Name: "doomed"})
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, db, created.ID))

	err = store.Delete(ctx, db, created.ID)
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestGadgetStore_IncrementForce(t *testing.T) {
	db := zapdtest.CreateTestDB(t)
	store := NewGadgetStore()
	ctx := context.Background()

	created, err := store.Create(ctx, db, &Record{Name: "target", Force: 10})
	require.NoError(t, err)

	require.NoError(t, store.IncrementForce(ctx, db, created.ID, 1))

	got, err := store.GetByID(ctx, db, created.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(11), got.Force)

	err = store.IncrementForce(ctx, db, 12345, 1)
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestGadgetStore_IncrementForceMissingField(t *testing.T) {
	db := zapdtest.CreateTestDB(t)
	store := NewGadgetStore()
	ctx := context.Background()

	// A document written without a force field still increments from zero
	res, err := db.Exec(`INSERT INTO gadgets (doc) VALUES ('{"name":"legacy"}')`)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)

	require.NoError(t, store.IncrementForce(ctx, db, id, 1))

	got, err := store.GetByID(ctx, db, id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Force)
}

func TestRepositories_ByKind(t *testing.T) {
	repos := NewRepositories()

	widgets, err := repos.ByKind(KindWidgets)
	require.NoError(t, err)
	assert.Equal(t, KindWidgets, widgets.Kind())

	gadgets, err := repos.ByKind(KindGadgets)
	require.NoError(t, err)
	assert.Equal(t, KindGadgets, gadgets.Kind())

	_, err = repos.ByKind(Kind("doohickeys"))
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestValidKind(t *testing.T) {
	assert.True(t, ValidKind("widgets"))
	assert.True(t, ValidKind("gadgets"))
	assert.False(t, ValidKind("doohickeys"))
	assert.False(t, ValidKind(""))
}
