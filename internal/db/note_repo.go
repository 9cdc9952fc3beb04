package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"simplenotes/internal/types"
)

// NoteRepository provides data access for the notes table. Every query is
// scoped to the owning user.
type NoteRepository struct {
	db DBTX
}

// NewNoteRepository creates a new NoteRepository backed by the given
// database connection (pool or transaction).
func NewNoteRepository(db DBTX) *NoteRepository {
	return &NoteRepository{db: db}
}

const noteColumns = `id, user_id, title, content, created_at, updated_at`

func scanNote(row pgx.Row) (*types.Note, error) {
	var n types.Note
	if err := row.Scan(&n.ID, &n.UserID, &n.Title, &n.Content, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return nil, err
	}
	return &n, nil
}

// Create inserts a note. ID and timestamps must be set by the caller.
func (r *NoteRepository) Create(ctx context.Context, n *types.Note) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO notes (id, user_id, title, content, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		n.ID, n.UserID, n.Title, n.Content, n.CreatedAt, n.UpdatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create note", err)
	}
	return nil
}

// GetByID returns a note owned by userID.
func (r *NoteRepository) GetByID(ctx context.Context, userID, id string) (*types.Note, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+noteColumns+` FROM notes WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	n, err := scanNote(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundNote, "note not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve note", err)
	}
	return n, nil
}

// List returns all notes owned by userID, newest first.
func (r *NoteRepository) List(ctx context.Context, userID string) ([]*types.Note, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+noteColumns+` FROM notes WHERE user_id = $1 ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list notes", err)
	}
	defer rows.Close()

	notes := make([]*types.Note, 0)
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan note", err)
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating notes", err)
	}
	return notes, nil
}

// Update replaces title and content of a note owned by n.UserID and returns
// the stored row.
func (r *NoteRepository) Update(ctx context.Context, n *types.Note) (*types.Note, error) {
	row := r.db.QueryRow(ctx,
		`UPDATE notes
		 SET title = $3, content = $4, updated_at = $5
		 WHERE id = $1 AND user_id = $2
		 RETURNING `+noteColumns,
		n.ID, n.UserID, n.Title, n.Content, n.UpdatedAt,
	)
	updated, err := scanNote(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundNote, "note not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to update note", err)
	}
	return updated, nil
}

// Delete removes a note owned by userID.
func (r *NoteRepository) Delete(ctx context.Context, userID, id string) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM notes WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete note", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundNote, "note not found", nil)
	}
	return nil
}

// Count returns the number of notes owned by userID.
func (r *NoteRepository) Count(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM notes WHERE user_id = $1`,
		userID,
	).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count notes", err)
	}
	return count, nil
}

// lockUserNotes takes a transaction-scoped advisory lock keyed on the user.
func (r *NoteRepository) lockUserNotes(ctx context.Context, userID string) error {
	_, err := r.db.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, userID)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to lock user notes", err)
	}
	return nil
}

// SerializedNoteCreator creates notes with the count check and insert
// serialized per user. allow decides, given the current count, whether the
// insert may proceed.
type SerializedNoteCreator struct {
	pool TxBeginner
}

// NewSerializedNoteCreator creates a SerializedNoteCreator.
func NewSerializedNoteCreator(pool TxBeginner) *SerializedNoteCreator {
	return &SerializedNoteCreator{pool: pool}
}

// CreateChecked locks the user's notes, counts them, and inserts n only if
// allow(count) is true. Returns false without inserting when denied.
func (c *SerializedNoteCreator) CreateChecked(ctx context.Context, n *types.Note, allow func(count int) bool) (bool, error) {
	created := false
	err := RunInTx(ctx, c.pool, func(tx DBTX) error {
		repo := NewNoteRepository(tx)
		if err := repo.lockUserNotes(ctx, n.UserID); err != nil {
			return err
		}
		count, err := repo.Count(ctx, n.UserID)
		if err != nil {
			return err
		}
		if !allow(count) {
			return nil
		}
		if err := repo.Create(ctx, n); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return created, nil
}
