package match

import (
	"context"
	"errors"
	"time"

	"skirmish.ai/internal/protocol"
)

const (
	requestTimeout   = 3 * time.Second
	leaveSendTimeout = 300 * time.Millisecond
)

var ErrMatchDone = errors.New("match is no longer running")

// Join seats a client. out receives encoded UPDATE frames; when the client
// falls behind only the newest frames are kept.
func (m *Match) Join(ctx context.Context, name, encoding string, out chan []byte) (JoinResponse, error) {
	if m.finished() {
		return JoinResponse{}, ErrMatchDone
	}
	ctx, cancel := requestCtx(ctx)
	defer cancel()
	req := JoinRequest{Name: name, Encoding: encoding, Out: out, Resp: make(chan JoinResponse, 1)}
	select {
	case m.join <- req:
	case <-m.done:
		return JoinResponse{}, ErrMatchDone
	case <-ctx.Done():
		return JoinResponse{}, ctx.Err()
	}
	select {
	case resp := <-req.Resp:
		return resp, nil
	case <-m.done:
		// The loop may have answered just before exiting.
		select {
		case resp := <-req.Resp:
			return resp, nil
		default:
			return JoinResponse{}, ErrMatchDone
		}
	case <-ctx.Done():
		return JoinResponse{}, ctx.Err()
	}
}

// Leave releases the seat held by out. It gives up quietly if the match loop
// is busy or gone.
func (m *Match) Leave(player int, out chan []byte) {
	t := time.NewTimer(leaveSendTimeout)
	defer t.Stop()
	select {
	case m.leave <- leaveReq{player: player, out: out}:
	case <-m.done:
	case <-t.C:
	}
}

// Submit queues a command; it is applied as soon as the loop receives it.
func (m *Match) Submit(ctx context.Context, player int, pkt protocol.CommandPacket) error {
	if m.finished() {
		return ErrMatchDone
	}
	ctx, cancel := requestCtx(ctx)
	defer cancel()
	select {
	case m.inbox <- CommandEnvelope{Player: player, Packet: pkt}:
		return nil
	case <-m.done:
		return ErrMatchDone
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Match) Start(ctx context.Context) error  { return m.sendControl(ctx, opStart, 0) }
func (m *Match) Pause(ctx context.Context) error  { return m.sendControl(ctx, opPause, 0) }
func (m *Match) Resume(ctx context.Context) error { return m.sendControl(ctx, opResume, 0) }

func (m *Match) Surrender(ctx context.Context, player int) error {
	return m.sendControl(ctx, opSurrender, player)
}

func (m *Match) sendControl(ctx context.Context, op controlOp, player int) error {
	if m.finished() {
		return ErrMatchDone
	}
	ctx, cancel := requestCtx(ctx)
	defer cancel()
	req := controlReq{op: op, player: player, resp: make(chan error, 1)}
	select {
	case m.control <- req:
	case <-m.done:
		return ErrMatchDone
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.resp:
		return err
	case <-m.done:
		select {
		case err := <-req.resp:
			return err
		default:
			return ErrMatchDone
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Match) finished() bool {
	select {
	case <-m.done:
		return true
	default:
		return false
	}
}

func requestCtx(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, requestTimeout)
}
