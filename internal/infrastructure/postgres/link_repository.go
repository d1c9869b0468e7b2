package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"horizon/internal/domain/link"
)

type LinkRepository struct {
	db *DB
}

var _ link.Repository = (*LinkRepository)(nil)

func NewLinkRepository(db *DB) *LinkRepository {
	return &LinkRepository{db: db}
}

const sessionColumns = `token, user_id, state, expires_at, failure_reason, created_at, updated_at`

func scanSession(row rowScanner) (*link.Session, error) {
	var s link.Session
	var state string
	if err := row.Scan(&s.Token, &s.UserID, &state, &s.ExpiresAt, &s.FailureReason, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.State = link.State(state)
	return &s, nil
}

func (r *LinkRepository) CreateSession(ctx context.Context, s *link.Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO link_sessions (token, user_id, state, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)`,
		s.Token, s.UserID, string(s.State), s.ExpiresAt, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create link session: %w", err)
	}
	return nil
}

func (r *LinkRepository) GetSession(ctx context.Context, token string) (*link.Session, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM link_sessions WHERE token = $1`, token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, link.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get link session: %w", err)
	}
	return s, nil
}

// TransitionSession is a single conditional UPDATE, so concurrent claims on
// the same token cannot both succeed.
func (r *LinkRepository) TransitionSession(ctx context.Context, token string, userID int64, from []link.State, to link.State, now time.Time) error {
	states := make([]string, len(from))
	for i, s := range from {
		states[i] = string(s)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE link_sessions
		SET state = $1, updated_at = $2
		WHERE token = $3 AND user_id = $4 AND state = ANY($5) AND expires_at > $2`,
		string(to), now, token, userID, pq.Array(states),
	)
	if err != nil {
		return fmt.Errorf("failed to transition link session: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return link.ErrSessionNotFound
	}
	return nil
}

func (r *LinkRepository) FailSession(ctx context.Context, token string, reason string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE link_sessions
		SET state = $1, failure_reason = $2, updated_at = NOW()
		WHERE token = $3 AND state = $4`,
		string(link.StateFailed), reason, token, string(link.StateExchanging),
	)
	if err != nil {
		return fmt.Errorf("failed to mark link session failed: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return link.ErrSessionNotFound
	}
	return nil
}

func (r *LinkRepository) ExpireSessions(ctx context.Context, now time.Time) (int64, error) {
	var total int64
	err := r.db.WithTx(ctx, "expire_link_sessions", func(tx *sql.Tx) error {
		expired, err := tx.ExecContext(ctx, `
			UPDATE link_sessions SET state = $1, updated_at = $2
			WHERE state IN ($3, $4) AND expires_at <= $2`,
			string(link.StateExpired), now, string(link.StateTokenRequested), string(link.StateWidgetOpen),
		)
		if err != nil {
			return fmt.Errorf("failed to expire link sessions: %w", err)
		}
		abandoned, err := tx.ExecContext(ctx, `
			UPDATE link_sessions SET state = $1, failure_reason = 'abandoned', updated_at = $2
			WHERE state = $3 AND expires_at <= $2`,
			string(link.StateFailed), now, string(link.StateExchanging),
		)
		if err != nil {
			return fmt.Errorf("failed to fail abandoned link sessions: %w", err)
		}

		n1, _ := expired.RowsAffected()
		n2, _ := abandoned.RowsAffected()
		total = n1 + n2
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

const linkColumns = `id, user_id, institution_id, institution_name, item_id, encrypted_credential, public_token_hash, created_at`

func scanLink(row rowScanner) (*link.InstitutionLink, error) {
	var l link.InstitutionLink
	err := row.Scan(&l.ID, &l.UserID, &l.InstitutionID, &l.InstitutionName, &l.ItemID, &l.EncryptedCredential, &l.PublicTokenHash, &l.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// CreateLink serializes link creation per user with an advisory lock, so two
// concurrent links to the same institution cannot both replace the old one.
func (r *LinkRepository) CreateLink(ctx context.Context, params link.CreateLinkParams) (*link.InstitutionLink, *link.InstitutionLink, error) {
	var created, replaced *link.InstitutionLink

	err := r.db.WithTx(ctx, "create_institution_link", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, params.UserID); err != nil {
			return fmt.Errorf("failed to lock user links: %w", err)
		}

		_, err := tx.ExecContext(ctx,
			`INSERT INTO redeemed_public_tokens (hash, user_id) VALUES ($1, $2)`,
			params.PublicTokenHash, params.UserID,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return link.ErrDuplicatePublicToken
			}
			return fmt.Errorf("failed to record public token: %w", err)
		}

		result, err := tx.ExecContext(ctx, `
			UPDATE link_sessions SET state = $1, updated_at = NOW()
			WHERE token = $2 AND user_id = $3 AND state = $4`,
			string(link.StateLinked), params.SessionToken, params.UserID, string(link.StateExchanging),
		)
		if err != nil {
			return fmt.Errorf("failed to mark link session linked: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return link.ErrSessionNotFound
		}

		replaced, err = scanLink(tx.QueryRowContext(ctx, `
			DELETE FROM institution_links
			WHERE user_id = $1 AND institution_id = $2
			RETURNING `+linkColumns,
			params.UserID, params.InstitutionID,
		))
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to replace institution link: %w", err)
		}

		created, err = scanLink(tx.QueryRowContext(ctx, `
			INSERT INTO institution_links (id, user_id, institution_id, institution_name, item_id, encrypted_credential, public_token_hash)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING `+linkColumns,
			params.ID, params.UserID, params.InstitutionID, params.InstitutionName,
			params.ItemID, params.EncryptedCredential, params.PublicTokenHash,
		))
		if err != nil {
			return fmt.Errorf("failed to create institution link: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return created, replaced, nil
}

func (r *LinkRepository) ListByUserID(ctx context.Context, userID int64) ([]*link.InstitutionLink, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+linkColumns+`
		FROM institution_links
		WHERE user_id = $1
		ORDER BY created_at, id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list institution links: %w", err)
	}
	defer rows.Close()

	var links []*link.InstitutionLink
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan institution link: %w", err)
		}
		links = append(links, l)
	}

	return links, rows.Err()
}

func (r *LinkRepository) GetByID(ctx context.Context, id string) (*link.InstitutionLink, error) {
	l, err := scanLink(r.db.QueryRowContext(ctx, `SELECT `+linkColumns+` FROM institution_links WHERE id::text = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, link.ErrLinkNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get institution link: %w", err)
	}
	return l, nil
}

func (r *LinkRepository) Delete(ctx context.Context, id string, userID int64) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM institution_links WHERE id::text = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete institution link: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return link.ErrLinkNotFound
	}
	return nil
}

func (r *LinkRepository) PublicTokenRedeemed(ctx context.Context, hash string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM redeemed_public_tokens WHERE hash = $1)`,
		hash,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check public token: %w", err)
	}
	return exists, nil
}
