package hub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/hexfog-backend/internal/engine"
	"github.com/DoyleJ11/hexfog-backend/internal/hexgrid"
	"github.com/DoyleJ11/hexfog-backend/internal/presence"
	"github.com/DoyleJ11/hexfog-backend/internal/room"
	"github.com/DoyleJ11/hexfog-backend/internal/store"
)

func seedStore(t *testing.T, st store.Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.CreateRoom(ctx, engine.Room{ID: "ZED123", CampaignID: "c1", MapID: "m1"}))
	require.NoError(t, st.CreateLayer(ctx, engine.Layer{MapID: "m1", ImageURL: "a.png"}.WithDefaults()))
	require.NoError(t, st.PutMembership(ctx, "c1", "dm", engine.RoleHost))
	require.NoError(t, st.PutMembership(ctx, "c1", "alice", engine.RoleParticipant))
}

func newHubWith(t *testing.T, st store.Store, opts Options) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewHub(ctx, st, presence.NewRegistry(st), opts)
}

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	st := store.NewMemory()
	seedStore(t, st)
	return newHubWith(t, st, Options{})
}

// gatedStore holds every transaction until release is closed.
type gatedStore struct {
	*store.Memory
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) InTx(ctx context.Context, fn func(tx store.Store) error) error {
	select {
	case g.entered <- struct{}{}:
	default:
	}
	<-g.release
	return g.Memory.InTx(ctx, fn)
}

func TestHub_Ensure_Get_SamePointer(t *testing.T) {
	h := newTestHub(t)
	ctx := context.Background()

	rm1, err := h.Ensure(ctx, "ZED123")
	require.NoError(t, err)

	reply := make(chan *room.Room, 1)
	h.Inbox() <- GetRoom{ID: "ZED123", Reply: reply}
	rm2 := <-reply

	if rm1 == nil || rm2 == nil || rm1 != rm2 {
		t.Fatalf("expected same room pointer")
	}

	rm3, err := h.Ensure(ctx, "ZED123")
	require.NoError(t, err)
	assert.Same(t, rm1, rm3)
}

func TestHub_Ensure_UnknownRoom(t *testing.T) {
	h := newTestHub(t)
	rm, err := h.Ensure(context.Background(), "nope")
	require.ErrorIs(t, err, engine.ErrNotFound)
	assert.Nil(t, rm)
}

func TestHub_Get_DoesNotLoad(t *testing.T) {
	h := newTestHub(t)
	reply := make(chan *room.Room, 1)
	h.Inbox() <- GetRoom{ID: "ZED123", Reply: reply}
	assert.Nil(t, <-reply)
}

func TestHub_Remove_ReloadsFreshRoom(t *testing.T) {
	h := newTestHub(t)
	ctx := context.Background()

	rm1, err := h.Ensure(ctx, "ZED123")
	require.NoError(t, err)
	h.Inbox() <- RemoveRoom{ID: "ZED123"}

	select {
	case <-rm1.Done():
	case <-time.After(time.Second):
		t.Fatalf("removed room did not stop")
	}

	rm2, err := h.Ensure(ctx, "ZED123")
	require.NoError(t, err)
	assert.NotSame(t, rm1, rm2)
}

func TestHub_Shutdown_StopsRooms(t *testing.T) {
	h := newTestHub(t)
	rm, err := h.Ensure(context.Background(), "ZED123")
	require.NoError(t, err)

	h.Inbox() <- ShutdownHub{}
	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatalf("hub did not stop")
	}
	select {
	case <-rm.Done():
	default:
		t.Fatalf("room still running after hub shutdown")
	}

	_, err = h.Ensure(context.Background(), "ZED123")
	assert.ErrorIs(t, err, room.ErrClosed)
}

func TestHub_ListRooms(t *testing.T) {
	h := newTestHub(t)
	_, err := h.Ensure(context.Background(), "ZED123")
	require.NoError(t, err)

	reply := make(chan []string, 1)
	h.Inbox() <- ListRooms{Reply: reply}
	assert.Equal(t, []string{"ZED123"}, <-reply)
}

func TestHub_Remove_WaitsForInFlightCommit(t *testing.T) {
	gated := &gatedStore{Memory: store.NewMemory(), entered: make(chan struct{}, 1), release: make(chan struct{})}
	seedStore(t, gated)
	h := newHubWith(t, gated, Options{})
	ctx := context.Background()

	old, err := h.Ensure(ctx, "ZED123")
	require.NoError(t, err)
	_, err = old.JoinViewer(ctx, "alice", "a1", make(chan room.Event, 8))
	require.NoError(t, err)

	moved := make(chan error, 1)
	go func() {
		_, err := old.Move(ctx, "dm", hexgrid.Coord{Q: 1, R: 1})
		moved <- err
	}()
	select {
	case <-gated.entered:
	case <-time.After(time.Second):
		t.Fatalf("move never reached the store")
	}

	h.Inbox() <- RemoveRoom{ID: "ZED123"}
	ensured := make(chan *room.Room, 1)
	go func() {
		rm, err := h.Ensure(ctx, "ZED123")
		assert.NoError(t, err)
		ensured <- rm
	}()

	select {
	case <-ensured:
		t.Fatalf("room reloaded while the old one was still committing")
	case <-time.After(50 * time.Millisecond):
	}

	close(gated.release)
	require.NoError(t, <-moved)

	var fresh *room.Room
	select {
	case fresh = <-ensured:
	case <-time.After(time.Second):
		t.Fatalf("reload did not complete")
	}
	require.NotSame(t, old, fresh)
	assert.Equal(t, int64(1), fresh.Beacon().Revision, "reload sees the committed move")

	_, err = fresh.JoinViewer(ctx, "alice", "a2", make(chan room.Event, 8))
	require.NoError(t, err)
	rep, err := fresh.Move(ctx, "dm", hexgrid.Coord{Q: 2, R: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(2), rep.Beacon.Revision)
	assert.Equal(t, []string{"alice"}, h.Presence().ListOnline("ZED123"))
}

func TestHub_EvictsIdleRooms(t *testing.T) {
	st := store.NewMemory()
	seedStore(t, st)
	h := newHubWith(t, st, Options{IdleAfter: 30 * time.Millisecond, SweepEvery: 10 * time.Millisecond})
	ctx := context.Background()

	busy, err := h.Ensure(ctx, "ZED123")
	require.NoError(t, err)
	_, err = busy.JoinViewer(ctx, "alice", "a1", make(chan room.Event, 8))
	require.NoError(t, err)

	select {
	case <-busy.Done():
		t.Fatalf("room with an attached viewer was unloaded")
	case <-time.After(150 * time.Millisecond):
	}

	require.NoError(t, busy.LeaveViewer(ctx, "alice", "a1"))
	select {
	case <-busy.Done():
	case <-time.After(time.Second):
		t.Fatalf("idle room was never unloaded")
	}

	again, err := h.Ensure(ctx, "ZED123")
	require.NoError(t, err)
	assert.NotSame(t, busy, again)
}
