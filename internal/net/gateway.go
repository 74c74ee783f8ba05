package net

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/l1jgo/entitysync/internal/engine"
	"github.com/l1jgo/entitysync/internal/net/packet"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

// Gateway routes sync batches from engine workers to viewer sessions. It
// implements engine.Deliverer.
type Gateway struct {
	mu      sync.RWMutex
	viewers map[uint64]*Session
	log     *zap.Logger
}

func NewGateway(log *zap.Logger) *Gateway {
	return &Gateway{
		viewers: make(map[uint64]*Session),
		log:     log,
	}
}

// Bind routes batches for viewerID to sess.
func (g *Gateway) Bind(viewerID uint64, sess *Session) {
	g.mu.Lock()
	g.viewers[viewerID] = sess
	g.mu.Unlock()
}

// Unbind stops routing viewerID, but only if it is still bound to sess.
// It reports whether a route was removed.
func (g *Gateway) Unbind(viewerID uint64, sess *Session) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.viewers[viewerID] != sess {
		return false
	}
	delete(g.viewers, viewerID)
	return true
}

func (g *Gateway) Count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.viewers)
}

// EncodeSync builds an S_SYNC payload for b.
func EncodeSync(b *engine.Batch) ([]byte, error) {
	body, err := msgpack.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("encode batch: %w", err)
	}
	w := packet.NewWriterWithOpcode(packet.S_OPCODE_SYNC)
	w.WriteBytes(body)
	return w.Bytes(), nil
}

// EncodeSyncFrames encodes b as one or more S_SYNC payloads that each fit
// in a frame. Frames must be applied in order.
func EncodeSyncFrames(b *engine.Batch) ([][]byte, error) {
	payload, err := EncodeSync(b)
	if err != nil {
		return nil, err
	}
	if len(payload) <= MaxFrameSize {
		return [][]byte{payload}, nil
	}
	if b.Len() < 2 {
		return nil, fmt.Errorf("sync event of %d bytes: %w", len(payload), ErrFrameTooLarge)
	}
	first, second := b.Split()
	head, err := EncodeSyncFrames(first)
	if err != nil {
		return nil, err
	}
	tail, err := EncodeSyncFrames(second)
	if err != nil {
		return nil, err
	}
	return append(head, tail...), nil
}

// DecodeSync parses an S_SYNC payload.
func DecodeSync(payload []byte) (*engine.Batch, error) {
	if len(payload) == 0 || payload[0] != packet.S_OPCODE_SYNC {
		return nil, fmt.Errorf("not a sync payload")
	}
	var b engine.Batch
	if err := msgpack.Unmarshal(payload[1:], &b); err != nil {
		return nil, fmt.Errorf("decode batch: %w", err)
	}
	return &b, nil
}

// Deliver queues the batch on the viewer's session, split over several
// frames when it is too large for one. A full queue reports
// engine.ErrUnavailable so the worker retries; a missing or closed session
// reports engine.ErrViewerGone.
func (g *Gateway) Deliver(_ context.Context, viewerID uint64, b *engine.Batch) error {
	g.mu.RLock()
	sess := g.viewers[viewerID]
	g.mu.RUnlock()
	if sess == nil || sess.IsClosed() {
		return fmt.Errorf("viewer %d: %w", viewerID, engine.ErrViewerGone)
	}

	frames, err := EncodeSyncFrames(b)
	if err != nil {
		g.log.Error("sync batch not encoded", zap.Uint64("viewer", viewerID), zap.Error(err))
		return err
	}
	if len(frames) > 1 {
		g.log.Debug("sync batch split",
			zap.Uint64("viewer", viewerID),
			zap.Int("events", b.Len()),
			zap.Int("frames", len(frames)))
	}

	switch err := sess.TrySendAll(frames); {
	case err == nil:
		return nil
	case errors.Is(err, ErrQueueFull):
		return fmt.Errorf("viewer %d: %w", viewerID, engine.ErrUnavailable)
	default:
		return fmt.Errorf("viewer %d: %w", viewerID, engine.ErrViewerGone)
	}
}
