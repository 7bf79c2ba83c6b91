package room

import (
	"context"

	"github.com/DoyleJ11/hexfog-backend/internal/hexgrid"
)

// The helpers below wrap the inbox protocol for callers that want a plain
// request/response. A request that was handed to the room is processed even
// if ctx ends while the caller is waiting.

func (r *Room) send(ctx context.Context, m Msg) error {
	select {
	case r.inbox <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return ErrClosed
	}
}

func await[T any](ctx context.Context, r *Room, reply <-chan T) (T, error) {
	var zero T
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-r.done:
		return zero, ErrClosed
	}
}

func (r *Room) JoinViewer(ctx context.Context, viewerID, connID string, outbox chan Event) (JoinResult, error) {
	reply := make(chan JoinReply, 1)
	if err := r.send(ctx, Join{ViewerID: viewerID, ConnID: connID, Outbox: outbox, Reply: reply}); err != nil {
		return JoinResult{}, err
	}
	rep, err := await(ctx, r, reply)
	if err != nil {
		return JoinResult{}, err
	}
	return rep.Result, rep.Err
}

func (r *Room) LeaveViewer(ctx context.Context, viewerID, connID string) error {
	reply := make(chan error, 1)
	if err := r.send(ctx, Leave{ViewerID: viewerID, ConnID: connID, Reply: reply}); err != nil {
		return err
	}
	rep, err := await(ctx, r, reply)
	if err != nil {
		return err
	}
	return rep
}

// DisconnectViewer does not wait for the room to process the drop.
func (r *Room) DisconnectViewer(ctx context.Context, viewerID, connID string) error {
	return r.send(ctx, Disconnect{ViewerID: viewerID, ConnID: connID})
}

func (r *Room) Move(ctx context.Context, viewerID string, to hexgrid.Coord) (MoveReply, error) {
	reply := make(chan MoveReply, 1)
	if err := r.send(ctx, MoveBeacon{ViewerID: viewerID, Coord: to, Reply: reply}); err != nil {
		return MoveReply{}, err
	}
	rep, err := await(ctx, r, reply)
	if err != nil {
		return MoveReply{}, err
	}
	return rep, rep.Err
}

func (r *Room) Switch(ctx context.Context, viewerID string, z int) (LayerReply, error) {
	reply := make(chan LayerReply, 1)
	if err := r.send(ctx, SwitchLayer{ViewerID: viewerID, Z: z, Reply: reply}); err != nil {
		return LayerReply{}, err
	}
	rep, err := await(ctx, r, reply)
	if err != nil {
		return LayerReply{}, err
	}
	return rep, rep.Err
}

func (r *Room) View(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := r.send(ctx, GetState{Reply: reply}); err != nil {
		return View{}, err
	}
	return await(ctx, r, reply)
}
