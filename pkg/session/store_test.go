package session_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cubohome/cubod/pkg/session"
)

func TestPairRoundTrip(t *testing.T) {
	store := session.NewStore(t.TempDir())

	pair := session.Pair{AccessToken: "A1", RefreshToken: "R1"}
	require.NoError(t, store.SavePair(pair))

	reopened := session.NewStore(store.Dir)
	require.NoError(t, reopened.Load())

	assert.Equal(t, pair, reopened.Pair())
}

func TestLoadAbsentFiles(t *testing.T) {
	store := session.NewStore(t.TempDir())
	require.NoError(t, store.Load())

	assert.Equal(t, session.Pair{}, store.Pair())
}

func TestSaveOverwrites(t *testing.T) {
	store := session.NewStore(t.TempDir())

	require.NoError(t, store.SavePair(session.Pair{AccessToken: "A1", RefreshToken: "R1"}))
	require.NoError(t, store.SavePair(session.Pair{AccessToken: "A2", RefreshToken: "R1"}))

	reopened := session.NewStore(store.Dir)
	require.NoError(t, reopened.Load())

	assert.Equal(t, "A2", reopened.Pair().AccessToken)
	assert.Equal(t, "R1", reopened.Pair().RefreshToken)
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	store := session.NewStore(t.TempDir())
	require.NoError(t, store.SavePair(session.Pair{AccessToken: "A1", RefreshToken: "R1"}))

	entries, err := os.ReadDir(store.Dir)
	require.NoError(t, err)

	for _, entry := range entries {
		assert.NotContains(t, entry.Name(), ".tmp")
	}
}

func TestMalformedTokenFileIgnored(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cubo_access_token.json"), []byte("{not-json"), 0o600))

	store := session.NewStore(dir)
	require.NoError(t, store.Load())

	assert.Empty(t, store.Pair().AccessToken)
}

func TestSessionRoundTrip(t *testing.T) {
	store := session.NewStore(t.TempDir())

	sess := session.Session{Username: "user@example.com", MobileUUID: "uuid-1", UserAgent: "okhttp/5.0.0-alpha.14"}
	require.NoError(t, store.SaveSession(sess))

	reopened := session.NewStore(store.Dir)
	require.NoError(t, reopened.Load())

	assert.Equal(t, sess, reopened.Session())
}
