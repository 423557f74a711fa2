package persistence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/petrijr/flux/internal/testutil"
)

func TestPostgresStoreSuite(t *testing.T) {
	dsn := testutil.PostgresDSN(t)

	db, err := OpenPostgres(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := NewPostgresStore(db)
	require.NoError(t, err)
	require.NoError(t, store.Init(context.Background()), "Init must be idempotent")

	s := &StoreSuite{}
	s.newStore = func() Store {
		_, err := db.Exec(`TRUNCATE workflow_states`)
		require.NoError(s.T(), err)
		return store
	}
	suite.Run(t, s)
}
