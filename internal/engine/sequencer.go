package engine

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/frameline/screenroom/internal/core"
	"github.com/frameline/screenroom/internal/telemetry"
)

// BlockReader resolves a programming block to its ordered content key list.
// Owned by the content catalog; the sequencer only reads it.
type BlockReader interface {
	GetBlock(ctx context.Context, blockID string) (*core.Block, error)
}

// Sequencer plays the entries of a programming block back-to-back under one
// continuous live event. Advancing retires the current entry's session and
// activates the next in a single guarded rotation, so the block index only
// ever moves forward.
type Sequencer struct {
	engine *Engine
	blocks BlockReader
	log    zerolog.Logger
}

func NewSequencer(engine *Engine, blocks BlockReader, logger zerolog.Logger) *Sequencer {
	return &Sequencer{
		engine: engine,
		blocks: blocks,
		log:    logger.With().Str("service", "sequencer").Logger(),
	}
}

// StartBlock takes the first entry of the block live. Block sessions are
// keyed by (contentKey, blockId, blockIndex): the same content key may
// appear twice in one block and each occurrence gets its own lifecycle.
func (q *Sequencer) StartBlock(ctx context.Context, blockID string, caller core.Identity) (*core.Session, error) {
	if !caller.IsHost() {
		return nil, core.ErrForbidden
	}

	block, err := q.blocks.GetBlock(ctx, blockID)
	if err != nil {
		return nil, err
	}
	if block.Empty() {
		return nil, core.ErrEmptyBlock
	}

	session := q.blockSession(block, 0, caller)
	if err := q.engine.Guard().Acquire(ctx, session); err != nil {
		return nil, err
	}

	telemetry.SessionStarted()
	q.log.Info().Str("blockId", blockID).Str("sessionKey", session.Key()).Msg("block started")
	q.engine.notifier.Publish(ctx, q.engine.lifecycleEvent(EventWentLive, session))

	return session, nil
}

// Advance ends the block's current entry and takes the next one live as one
// atomic rotation against the liveness guard. When the block is exhausted
// it degrades to a plain stop.
func (q *Sequencer) Advance(ctx context.Context, blockID string, caller core.Identity) (*core.Session, error) {
	if !caller.IsHost() {
		return nil, core.ErrForbidden
	}

	current, err := q.engine.GetLiveSession(ctx)
	if err != nil {
		return nil, err
	}
	if !current.InBlock() || *current.BlockID != blockID {
		return nil, core.ErrNotLive
	}

	block, err := q.blocks.GetBlock(ctx, blockID)
	if err != nil {
		return nil, err
	}

	nextIndex := *current.BlockIndex + 1
	now := q.engine.now()

	current.End(caller.ID, now)

	if _, ok := block.KeyAt(nextIndex); !ok {
		if err := q.engine.Guard().Release(ctx, current); err != nil {
			return nil, err
		}

		telemetry.SessionStopped()
		q.log.Info().Str("blockId", blockID).Str("sessionKey", current.Key()).Msg("block exhausted")
		q.engine.notifier.Publish(ctx, q.engine.lifecycleEvent(EventEnded, current))

		return current, nil
	}

	next := q.blockSession(block, nextIndex, caller)
	if err := q.engine.Guard().Rotate(ctx, current, next); err != nil {
		return nil, err
	}

	q.log.Info().
		Str("blockId", blockID).
		Int("blockIndex", nextIndex).
		Str("sessionKey", next.Key()).
		Msg("block advanced")
	q.engine.notifier.Publish(ctx, q.engine.lifecycleEvent(EventEnded, current))
	q.engine.notifier.Publish(ctx, q.engine.lifecycleEvent(EventWentLive, next))

	return next, nil
}

func (q *Sequencer) blockSession(block *core.Block, index int, caller core.Identity) *core.Session {
	contentKey, _ := block.KeyAt(index)
	blockID := block.ID
	blockIndex := index

	session := &core.Session{
		ContentKey: contentKey,
		BlockID:    &blockID,
		BlockIndex: &blockIndex,
	}
	session.GoLive(caller.ID, q.engine.now())

	return session
}
