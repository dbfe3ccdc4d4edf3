package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/easel-ai/easel/internal/graph"
)

// querier covers the pgx operations the store needs. Both *pgxpool.Pool
// and pgx.Tx satisfy it, so every helper works inside and outside a
// transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres implements Client against a PostgreSQL durable store.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgres creates a Postgres-backed durable store client.
func NewPostgres(pool *pgxpool.Pool, logger *slog.Logger) *Postgres {
	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{pool: pool, logger: logger}
}

// CreateSession persists the session and any versions it already
// carries in one transaction.
func (p *Postgres) CreateSession(ctx context.Context, sess *graph.Session) error {
	history, err := json.Marshal(append([]string{}, sess.EvolutionHistory...))
	if err != nil {
		return fmt.Errorf("marshal evolution history: %w", err)
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create session: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO canvas_sessions (conversation_id, theme, base_prompt, evolution_history,
		                             selected_version_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7)`,
		sess.ConversationID, sess.Theme, sess.BasePrompt, history,
		sess.SelectedID, sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyExists
		}
		return fmt.Errorf("create session %s: %w", sess.ConversationID, err)
	}

	for _, v := range sess.Versions {
		if err := insertVersion(ctx, tx, sess.ConversationID, v); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit create session: %w", err)
	}

	p.logger.Debug("persisted session", "conversation_id", sess.ConversationID,
		"versions", len(sess.Versions))
	return nil
}

// SessionByConversation loads the session and its versions ordered by
// version number.
func (p *Postgres) SessionByConversation(ctx context.Context, conversationID string) (*graph.Session, error) {
	var (
		sess    graph.Session
		history []byte
		selID   *string
	)
	err := p.pool.QueryRow(ctx, `
		SELECT conversation_id, theme, base_prompt, evolution_history,
		       selected_version_id, created_at, updated_at
		FROM canvas_sessions
		WHERE conversation_id = $1`,
		conversationID,
	).Scan(&sess.ConversationID, &sess.Theme, &sess.BasePrompt, &history,
		&selID, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load session %s: %w", conversationID, err)
	}

	if len(history) > 0 {
		if err := json.Unmarshal(history, &sess.EvolutionHistory); err != nil {
			return nil, fmt.Errorf("unmarshal evolution history: %w", err)
		}
	}
	if selID != nil {
		sess.SelectedID = *selID
	}

	rows, err := p.pool.Query(ctx, `
		SELECT id, version_number, prompt, negative_prompt, style, size,
		       image_url, COALESCE(parent_version_id, ''), status, is_selected, created_at
		FROM canvas_versions
		WHERE conversation_id = $1
		ORDER BY version_number`,
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("load versions for %s: %w", conversationID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var v graph.Version
		if err := rows.Scan(&v.ID, &v.Number, &v.Prompt, &v.NegativePrompt,
			&v.Style, &v.Size, &v.ImageURL, &v.ParentID, &v.Status,
			&v.Selected, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		sess.Versions = append(sess.Versions, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate versions: %w", err)
	}

	return &sess, nil
}

// AddVersion persists the version and makes it the remote selection.
func (p *Postgres) AddVersion(ctx context.Context, conversationID string, v *graph.Version) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin add version: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := insertVersion(ctx, tx, conversationID, v); err != nil {
		return err
	}
	if err := setSelection(ctx, tx, conversationID, v.ID); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit add version: %w", err)
	}

	p.logger.Debug("persisted version", "conversation_id", conversationID,
		"version_id", v.ID, "number", v.Number)
	return nil
}

// UpdateVersion merges the non-nil fields into the remote version.
func (p *Postgres) UpdateVersion(ctx context.Context, conversationID, versionID string, upd graph.VersionUpdate) error {
	var status *string
	if upd.Status != nil {
		s := string(*upd.Status)
		status = &s
	}

	tag, err := p.pool.Exec(ctx, `
		UPDATE canvas_versions
		SET image_url = COALESCE($3, image_url),
		    status    = COALESCE($4, status)
		WHERE conversation_id = $1 AND id = $2`,
		conversationID, versionID, upd.ImageURL, status)
	if err != nil {
		return fmt.Errorf("update version %s: %w", versionID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	_, err = p.pool.Exec(ctx,
		`UPDATE canvas_sessions SET updated_at = now() WHERE conversation_id = $1`,
		conversationID)
	if err != nil {
		return fmt.Errorf("touch session %s: %w", conversationID, err)
	}
	return nil
}

// SelectVersion toggles the remote selection to the given version.
func (p *Postgres) SelectVersion(ctx context.Context, conversationID, versionID string) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin select version: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var one int
	err = tx.QueryRow(ctx,
		`SELECT 1 FROM canvas_versions WHERE conversation_id = $1 AND id = $2`,
		conversationID, versionID).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("check version %s: %w", versionID, err)
	}

	if err := setSelection(ctx, tx, conversationID, versionID); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit select version: %w", err)
	}
	return nil
}

// HasVersion reports whether the version exists remotely.
func (p *Postgres) HasVersion(ctx context.Context, conversationID, versionID string) (bool, error) {
	var one int
	err := p.pool.QueryRow(ctx,
		`SELECT 1 FROM canvas_versions WHERE conversation_id = $1 AND id = $2`,
		conversationID, versionID).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check version %s: %w", versionID, err)
	}
	return true, nil
}

// DeleteVersion removes the version, records its image URL for cleanup,
// and reselects the highest-numbered survivor, all in one transaction.
func (p *Postgres) DeleteVersion(ctx context.Context, conversationID, versionID string) (*DeleteResult, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin delete version: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		imageURL   string
		wasCurrent bool
	)
	err = tx.QueryRow(ctx, `
		DELETE FROM canvas_versions
		WHERE conversation_id = $1 AND id = $2
		RETURNING image_url, is_selected`,
		conversationID, versionID).Scan(&imageURL, &wasCurrent)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("delete version %s: %w", versionID, err)
	}

	if imageURL != "" {
		_, err = tx.Exec(ctx, `
			INSERT INTO canvas_deleted_images (conversation_id, image_url)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING`,
			conversationID, imageURL)
		if err != nil {
			return nil, fmt.Errorf("record deleted image: %w", err)
		}
	}

	result := &DeleteResult{DeletedImageURL: imageURL}

	if wasCurrent {
		var nextID string
		err = tx.QueryRow(ctx, `
			SELECT id FROM canvas_versions
			WHERE conversation_id = $1
			ORDER BY version_number DESC
			LIMIT 1`,
			conversationID).Scan(&nextID)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			// No survivors; clear the selection.
		case err != nil:
			return nil, fmt.Errorf("find reselection candidate: %w", err)
		default:
			result.NewSelectedID = nextID
		}
		if err := setSelection(ctx, tx, conversationID, result.NewSelectedID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit delete version: %w", err)
	}

	p.logger.Debug("deleted remote version", "conversation_id", conversationID,
		"version_id", versionID, "new_selected", result.NewSelectedID)
	return result, nil
}

// DeletedImageURLs returns the conversation's deleted image URLs in
// deletion order.
func (p *Postgres) DeletedImageURLs(ctx context.Context, conversationID string) ([]string, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT image_url FROM canvas_deleted_images
		WHERE conversation_id = $1
		ORDER BY deleted_at`,
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("list deleted images for %s: %w", conversationID, err)
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan deleted image: %w", err)
		}
		urls = append(urls, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deleted images: %w", err)
	}
	return urls, nil
}

// AppendEvolution appends a prompt to the session's evolution history.
func (p *Postgres) AppendEvolution(ctx context.Context, conversationID, prompt string) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE canvas_sessions
		SET evolution_history = evolution_history || to_jsonb($2::text),
		    updated_at = now()
		WHERE conversation_id = $1`,
		conversationID, prompt)
	if err != nil {
		return fmt.Errorf("append evolution for %s: %w", conversationID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSession removes the session, its versions and its deleted-set.
func (p *Postgres) DeleteSession(ctx context.Context, conversationID string) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delete session: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`DELETE FROM canvas_sessions WHERE conversation_id = $1`, conversationID)
	if err != nil {
		return fmt.Errorf("delete session %s: %w", conversationID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	_, err = tx.Exec(ctx,
		`DELETE FROM canvas_deleted_images WHERE conversation_id = $1`, conversationID)
	if err != nil {
		return fmt.Errorf("delete deleted-image set for %s: %w", conversationID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit delete session: %w", err)
	}

	p.logger.Debug("deleted remote session", "conversation_id", conversationID)
	return nil
}

// SessionSummary is a listing row; the CLI uses it to enumerate
// persisted sessions without loading their versions.
type SessionSummary struct {
	ConversationID string
	Theme          string
	VersionCount   int
	UpdatedAt      time.Time
}

// ListSessions returns summaries of all persisted sessions, most
// recently updated first.
func (p *Postgres) ListSessions(ctx context.Context, limit int) ([]SessionSummary, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.pool.Query(ctx, `
		SELECT s.conversation_id, s.theme, COUNT(v.id), s.updated_at
		FROM canvas_sessions s
		LEFT JOIN canvas_versions v ON v.conversation_id = s.conversation_id
		GROUP BY s.conversation_id, s.theme, s.updated_at
		ORDER BY s.updated_at DESC
		LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var s SessionSummary
		if err := rows.Scan(&s.ConversationID, &s.Theme, &s.VersionCount, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session summary: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session summaries: %w", err)
	}
	return out, nil
}

// insertVersion writes one version row.
func insertVersion(ctx context.Context, q querier, conversationID string, v *graph.Version) error {
	_, err := q.Exec(ctx, `
		INSERT INTO canvas_versions (id, conversation_id, version_number, prompt,
		                             negative_prompt, style, size, image_url,
		                             parent_version_id, status, is_selected, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $10, $11, $12)`,
		v.ID, conversationID, v.Number, v.Prompt, v.NegativePrompt,
		v.Style, v.Size, v.ImageURL, v.ParentID, string(v.Status), v.Selected, v.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert version %s: %w", v.ID, err)
	}
	return nil
}

// setSelection toggles is_selected across the session's versions and
// mirrors the choice onto the session row. An empty versionID clears
// the selection.
func setSelection(ctx context.Context, q querier, conversationID, versionID string) error {
	_, err := q.Exec(ctx, `
		UPDATE canvas_versions
		SET is_selected = (id = $2)
		WHERE conversation_id = $1`,
		conversationID, versionID)
	if err != nil {
		return fmt.Errorf("toggle selection: %w", err)
	}

	_, err = q.Exec(ctx, `
		UPDATE canvas_sessions
		SET selected_version_id = NULLIF($2, ''), updated_at = now()
		WHERE conversation_id = $1`,
		conversationID, versionID)
	if err != nil {
		return fmt.Errorf("update session selection: %w", err)
	}
	return nil
}
