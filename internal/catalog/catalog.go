package catalog

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/frameline/screenroom/internal/core"
)

// BlockReader resolves programming blocks. The catalog itself (titles,
// artwork, scheduling metadata) belongs to the surrounding platform; the
// engine only ever reads the ordered content key list.
type BlockReader interface {
	GetBlock(ctx context.Context, blockID string) (*core.Block, error)
}

type BlocksRepository struct {
	db *sqlx.DB
}

func NewBlocksRepository(db *sqlx.DB) *BlocksRepository {
	return &BlocksRepository{db: db}
}

func (r *BlocksRepository) GetBlock(ctx context.Context, blockID string) (*core.Block, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM blocks WHERE id = $1)`,
		blockID,
	)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, sql.ErrNoRows
	}

	contentKeys := []string{}
	err = r.db.SelectContext(ctx, &contentKeys,
		`SELECT content_key
			FROM block_entries
			WHERE block_id = $1
			ORDER BY position ASC`,
		blockID,
	)
	if err != nil {
		return nil, err
	}

	return &core.Block{ID: blockID, ContentKeys: contentKeys}, nil
}
