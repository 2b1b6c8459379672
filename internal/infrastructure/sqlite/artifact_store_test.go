package sqlite

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/zjrosen/modreg/internal/artifact"
	"github.com/zjrosen/modreg/internal/mocks"
	"github.com/zjrosen/modreg/internal/scope"
	"github.com/zjrosen/modreg/internal/testutil"
	"github.com/zjrosen/modreg/internal/txn"
)

func TestArtifactStore_RoundTripKeepsOrder(t *testing.T) {
	store := newTestDB(t).ArtifactStore()
	ctx := context.Background()

	in := []artifact.Artifact{
		testutil.Module("B", "second by name, first by position", testutil.Version("1")),
		testutil.Resource("a.txt", "resource"),
		testutil.Archive(t, "bundle", []string{"x/Y.mod"}, map[string]string{"x/Y.mod": "y"}),
	}
	changed, err := store.ReplaceArtifacts(ctx, testutil.Process1, in)
	require.NoError(t, err)
	require.True(t, changed)

	out, err := store.ListArtifacts(ctx, testutil.Process1)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestArtifactStore_UnknownScopeIsEmpty(t *testing.T) {
	store := newTestDB(t).ArtifactStore()

	out, err := store.ListArtifacts(context.Background(), testutil.TenantA)
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestArtifactStore_GlobalScope(t *testing.T) {
	store := newTestDB(t).ArtifactStore()
	ctx := context.Background()

	_, err := store.ReplaceArtifacts(ctx, scope.Global, []artifact.Artifact{testutil.Module("G", "g")})
	require.NoError(t, err)

	deployments, err := store.Deployments(ctx)
	require.NoError(t, err)
	require.Len(t, deployments, 1)
	require.Equal(t, scope.Global, deployments[0].Scope)
	require.Equal(t, 1, deployments[0].ArtifactCount)
}

func TestArtifactStore_ContentIsCompressed(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	body := bytes.Repeat([]byte("module body "), 1000)

	_, err := db.ArtifactStore().ReplaceArtifacts(ctx, testutil.Process1,
		[]artifact.Artifact{{Name: "Big", Type: artifact.TypeModule, Content: body}})
	require.NoError(t, err)

	var stored []byte
	var size int64
	require.NoError(t, db.conn.QueryRow(`SELECT content, size FROM artifacts`).Scan(&stored, &size))
	require.Equal(t, int64(len(body)), size)
	require.Less(t, len(stored), len(body)/4)
}

func TestArtifactStore_UnchangedMappingIsNotRewritten(t *testing.T) {
	store := newTestDB(t).ArtifactStore()
	ctx := context.Background()
	arts := []artifact.Artifact{testutil.Module("A", "a")}

	changed, err := store.ReplaceArtifacts(ctx, testutil.Process1, arts)
	require.NoError(t, err)
	require.True(t, changed)

	changed, err = store.ReplaceArtifacts(ctx, testutil.Process1, arts)
	require.NoError(t, err)
	require.False(t, changed)

	changed, err = store.ReplaceArtifacts(ctx, testutil.Process1, []artifact.Artifact{testutil.Module("A", "b")})
	require.NoError(t, err)
	require.True(t, changed)
}

func TestArtifactStore_RejectsInvalidArtifacts(t *testing.T) {
	store := newTestDB(t).ArtifactStore()

	_, err := store.ReplaceArtifacts(context.Background(), testutil.Process1,
		[]artifact.Artifact{{Name: "", Type: artifact.TypeModule}})
	require.Error(t, err)
	_, err = store.ReplaceArtifacts(context.Background(), testutil.Process1,
		[]artifact.Artifact{{Name: "x", Type: "plugin"}})
	require.Error(t, err)
}

func TestArtifactStore_DeleteScope(t *testing.T) {
	store := newTestDB(t).ArtifactStore()
	ctx := context.Background()

	_, err := store.ReplaceArtifacts(ctx, testutil.Process1, []artifact.Artifact{testutil.Module("A", "a")})
	require.NoError(t, err)
	_, err = store.ReplaceArtifacts(ctx, testutil.Process2, []artifact.Artifact{testutil.Module("B", "b")})
	require.NoError(t, err)

	existed, err := store.DeleteScope(ctx, testutil.Process1)
	require.NoError(t, err)
	require.True(t, existed)

	out, err := store.ListArtifacts(ctx, testutil.Process1)
	require.NoError(t, err)
	require.Empty(t, out)
	out, err = store.ListArtifacts(ctx, testutil.Process2)
	require.NoError(t, err)
	require.Len(t, out, 1)

	existed, err = store.DeleteScope(ctx, testutil.Process1)
	require.NoError(t, err)
	require.False(t, existed)
}

func TestArtifactStore_ReadsThroughBoundTransaction(t *testing.T) {
	db := newTestDB(t)
	store := db.ArtifactStore()
	ctx := context.Background()
	boom := errors.New("abort")

	err := txn.RunInTx(ctx, db.Connection(), func(txCtx context.Context) error {
		_, err := store.ReplaceArtifacts(txCtx, testutil.Process1, []artifact.Artifact{testutil.Module("A", "a")})
		require.NoError(t, err)

		inside, err := store.ListArtifacts(txCtx, testutil.Process1)
		require.NoError(t, err)
		require.Len(t, inside, 1, "transaction sees its own writes")
		return boom
	})
	require.ErrorIs(t, err, boom)

	after, err := store.ListArtifacts(ctx, testutil.Process1)
	require.NoError(t, err)
	require.Empty(t, after, "rolled back writes are gone")
}

func TestArtifactStore_BlobCacheHit(t *testing.T) {
	cache := mocks.NewCacheManager[string, []byte](t)
	store := newTestDB(t, WithBlobCache(cache, time.Minute)).ArtifactStore()
	ctx := context.Background()
	a := testutil.Module("A", "cached body")
	digest := artifact.Digest(a.Content)

	_, err := store.ReplaceArtifacts(ctx, testutil.Process1, []artifact.Artifact{a})
	require.NoError(t, err)

	cache.On("Get", mock.Anything, digest).Return(nil, false).Once()
	cache.On("Set", mock.Anything, digest, []byte("cached body"), time.Minute).Once()
	cache.On("Get", mock.Anything, digest).Return([]byte("cached body"), true).Once()

	for range 2 {
		out, err := store.ListArtifacts(ctx, testutil.Process1)
		require.NoError(t, err)
		require.Equal(t, "cached body", string(out[0].Content))
		out[0].Content[0] = 'X'
	}
}

func TestArtifactStore_DetectsCorruption(t *testing.T) {
	db := newTestDB(t)
	store := db.ArtifactStore()
	ctx := context.Background()

	_, err := store.ReplaceArtifacts(ctx, testutil.Process1, []artifact.Artifact{testutil.Module("A", "original")})
	require.NoError(t, err)
	_, err = db.conn.Exec(`UPDATE artifacts SET content = ?`, compress([]byte("tampered")))
	require.NoError(t, err)

	_, err = store.ListArtifacts(ctx, testutil.Process1)
	require.Error(t, err)
}

// TestArtifactStore_ScopeIsolation is a property-based test using rapid.
// It verifies that listing one scope never returns another scope's artifacts.
func TestArtifactStore_ScopeIsolation(t *testing.T) {
	rapid.Check(t, func(r *rapid.T) {
		store := newTestDB(t).ArtifactStore()
		ctx := context.Background()

		n := rapid.IntRange(2, 5).Draw(r, "scopes")
		written := make(map[scope.ID][]string)
		for i := range n {
			kind := rapid.SampledFrom([]scope.Kind{"process", "tenant"}).Draw(r, "kind")
			id := scope.New(kind, fmt.Sprint(i))
			count := rapid.IntRange(0, 4).Draw(r, "count")
			var arts []artifact.Artifact
			for j := range count {
				name := fmt.Sprintf("%s-%d", id, j)
				arts = append(arts, testutil.Module(name, name))
				written[id] = append(written[id], name)
			}
			_, err := store.ReplaceArtifacts(ctx, id, arts)
			require.NoError(r, err)
		}

		for id, names := range written {
			out, err := store.ListArtifacts(ctx, id)
			require.NoError(r, err)
			require.Len(r, out, len(names))
			for i, a := range out {
				require.Equal(r, names[i], a.Name)
			}
		}
	})
}
