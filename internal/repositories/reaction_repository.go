package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// ReactionRepository toggles per-user emoji reactions.
type ReactionRepository interface {
	ToggleReaction(ctx context.Context, messageID int, userID int, emoji string) (bool, error)
}

// ReactionRepo is a sqlx implementation of ReactionRepository.
type ReactionRepo struct {
	db *sqlx.DB
}

// NewReactionRepo constructs a ReactionRepo.
func NewReactionRepo(db *sqlx.DB) *ReactionRepo {
	return &ReactionRepo{db: db}
}

// ToggleReaction removes the reaction row if present, otherwise inserts it.
// Returns whether the reaction exists after the call. The two statements run
// in one transaction so concurrent toggles cannot produce duplicates.
func (r *ReactionRepo) ToggleReaction(ctx context.Context, messageID int, userID int, emoji string) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM message_reactions WHERE message_id=$1 AND user_id=$2 AND emoji=$3`,
		messageID, userID, emoji)
	if err != nil {
		return false, err
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	exists := false
	if deleted == 0 {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO message_reactions (message_id, user_id, emoji) VALUES ($1, $2, $3)
             ON CONFLICT (message_id, user_id, emoji) DO NOTHING`,
			messageID, userID, emoji); err != nil {
			return false, err
		}
		exists = true
	}

	if err = tx.Commit(); err != nil {
		return false, err
	}
	return exists, nil
}
