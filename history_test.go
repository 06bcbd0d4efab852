package rttable

import (
	"context"
	"testing"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/pkg/runtime"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/observability"

	"github.com/xaionaro-go/rttable/types"
)

func TestBeginPictureSkipsEmptyEpochs(t *testing.T) {
	ctx := testContext(t)

	tbl, err := New(ctx, 4)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		tbl.BeginPicture(ctx)
	}
	require.Equal(t, 1, tbl.HistoryLen())

	require.NoError(t, tbl.Register(ctx, 1))
	tbl.BeginPicture(ctx)
	require.Equal(t, 2, tbl.HistoryLen())

	// nothing was registered in the fresh epoch, so it is reused
	tbl.BeginPicture(ctx)
	require.Equal(t, 2, tbl.HistoryLen())
}

func TestHistoryBound(t *testing.T) {
	ctx := testContext(t)

	tbl := &Table{MaxHistory: 3}
	require.NoError(t, tbl.Init(ctx, 16))

	for picture := types.SurfaceID(0); picture < 40; picture++ {
		require.NoError(t, tbl.Register(ctx, 100+picture))
		tbl.BeginPicture(ctx)
		require.LessOrEqual(t, tbl.HistoryLen(), 3)
		requireConsistent(t, tbl)
	}
}

func TestEvictionReassignsSlot(t *testing.T) {
	loggerLevel := logger.LevelTrace

	runtime.DefaultCallerPCFilter = observability.CallerPCFilter(runtime.DefaultCallerPCFilter)
	l := logrus.Default().WithLevel(loggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	logger.Default = func() logger.Logger {
		return l
	}
	defer belt.Flush(ctx)

	tbl := &Table{MaxHistory: 2}
	require.NoError(t, tbl.Init(ctx, 2))

	const A, B, C = types.SurfaceID(1), types.SurfaceID(2), types.SurfaceID(3)

	require.NoError(t, tbl.Register(ctx, A))
	tbl.BeginPicture(ctx)
	require.NoError(t, tbl.Register(ctx, B))

	// no free slot is left, and A was only touched in the oldest picture:
	// registering C must evict it
	require.NoError(t, tbl.Register(ctx, C))
	require.False(t, tbl.IsRegistered(A))
	require.True(t, tbl.IsRegistered(B))
	require.True(t, tbl.IsRegistered(C))
	requireConsistent(t, tbl)
}

func TestRetentionAcrossEpochs(t *testing.T) {
	ctx := testContext(t)

	tbl := &Table{MaxHistory: 2}
	require.NoError(t, tbl.Init(ctx, 2))

	const A, B, C = types.SurfaceID(1), types.SurfaceID(2), types.SurfaceID(3)

	require.NoError(t, tbl.Register(ctx, A))
	tbl.BeginPicture(ctx)
	require.NoError(t, tbl.Register(ctx, B))
	require.NoError(t, tbl.Register(ctx, A)) // A stays live in the current picture

	// A is present in a retained epoch, so evicting the oldest one frees
	// nothing and C cannot be registered
	require.ErrorAs(t, tbl.Register(ctx, C), &ErrNoInactiveTarget{})
	require.True(t, tbl.IsRegistered(A))
	require.True(t, tbl.IsRegistered(B))
	require.False(t, tbl.IsRegistered(C))
	requireConsistent(t, tbl)
}

func TestEvictionClearsRoles(t *testing.T) {
	ctx := testContext(t)

	tbl := &Table{MaxHistory: 2}
	require.NoError(t, tbl.Init(ctx, 2))

	const A, B, C = types.SurfaceID(1), types.SurfaceID(2), types.SurfaceID(3)

	require.NoError(t, tbl.SetReconTarget(ctx, A))
	tbl.BeginPicture(ctx)
	require.NoError(t, tbl.Register(ctx, B))

	require.NoError(t, tbl.Register(ctx, C))
	require.False(t, tbl.IsRegistered(A))
	require.Equal(t, types.InvalidSurfaceID, tbl.GetReconTarget())
}

func TestOnEvictCallback(t *testing.T) {
	ctx := testContext(t)

	tbl := &Table{MaxHistory: 2}
	require.NoError(t, tbl.Init(ctx, 2))

	var evicted []types.SurfaceID
	epochs := 0
	tbl.OnEvict = func(_ context.Context, ids []types.SurfaceID) {
		epochs++
		evicted = append(evicted, ids...)
	}

	const A, B, C = types.SurfaceID(1), types.SurfaceID(2), types.SurfaceID(3)
	require.NoError(t, tbl.Register(ctx, A))
	tbl.BeginPicture(ctx)
	require.NoError(t, tbl.Register(ctx, B))
	require.NoError(t, tbl.Register(ctx, C))

	require.Equal(t, 1, epochs)
	require.Equal(t, []types.SurfaceID{A}, evicted)
}

func TestBeginPictureEvictsBeyondBound(t *testing.T) {
	ctx := testContext(t)

	tbl := &Table{MaxHistory: 2}
	require.NoError(t, tbl.Init(ctx, 8))

	require.NoError(t, tbl.Register(ctx, 1))
	tbl.BeginPicture(ctx)
	require.NoError(t, tbl.Register(ctx, 2))
	tbl.BeginPicture(ctx)
	require.Equal(t, 2, tbl.HistoryLen())

	// surface 1 aged out of the whole window, so the bound-restoring
	// eviction dropped its registration even though slots were plenty
	require.False(t, tbl.IsRegistered(1))
	require.True(t, tbl.IsRegistered(2))
	requireConsistent(t, tbl)
}

func TestEvictionSkipsFailedRegistrationMarks(t *testing.T) {
	ctx := testContext(t)

	tbl := &Table{MaxHistory: 2}
	require.NoError(t, tbl.Init(ctx, 1))

	require.NoError(t, tbl.Register(ctx, 1))
	require.ErrorAs(t, tbl.Register(ctx, 2), &ErrNoInactiveTarget{})

	// surface 2 left a usage mark but holds no slot; aging it out must not
	// disturb anything
	tbl.BeginPicture(ctx)
	require.NoError(t, tbl.Register(ctx, 3)) // evicts the epoch with 1 and 2
	require.False(t, tbl.IsRegistered(1))
	require.True(t, tbl.IsRegistered(3))
	requireConsistent(t, tbl)
}
