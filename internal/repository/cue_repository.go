package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/episodeline/pipeline/internal/model"
)

const cueColumns = `id, episode_id, asset_id, timestamp, duration_ms, slot_id, action, transition, easing,
	asset_role, icon_state, is_anchor, anchor_name, status, generated_by, generation_confidence, notes,
	created_at, updated_at`

type CueRepository struct {
	db *sql.DB
}

func NewCueRepository(db *DB) *CueRepository {
	return &CueRepository{db: db.Conn()}
}

func (r *CueRepository) ListByEpisode(ctx context.Context, episodeID string, filter model.CueFilter) ([]model.IconCue, error) {
	query := `SELECT ` + cueColumns + ` FROM icon_cues WHERE episode_id = ?`
	args := []any{episodeID}

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	if filter.SlotID != "" {
		query += ` AND slot_id = ?`
		args = append(args, filter.SlotID)
	}

	switch filter.Sort {
	case "slot":
		query += ` ORDER BY slot_id ASC, timestamp ASC`
	default:
		query += ` ORDER BY timestamp ASC, slot_id ASC`
	}

	return r.query(ctx, query, args...)
}

func (r *CueRepository) ListAnchors(ctx context.Context, episodeID string) ([]model.IconCue, error) {
	return r.query(ctx, `SELECT `+cueColumns+` FROM icon_cues WHERE episode_id = ? AND is_anchor = 1 ORDER BY timestamp ASC`, episodeID)
}

func (r *CueRepository) CountByEpisode(ctx context.Context, episodeID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM icon_cues WHERE episode_id = ?`, episodeID).Scan(&n)
	return n, err
}

func (r *CueRepository) Get(ctx context.Context, id string) (*model.IconCue, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+cueColumns+` FROM icon_cues WHERE id = ?`, id)
	cue, err := scanCue(row)
	if err := wrapNotFound(err, "cue"); err != nil {
		return nil, err
	}
	return cue, nil
}

// Create inserts one cue and reports ErrDuplicate when another cue already
// occupies the same episode, slot, timestamp and source.
func (r *CueRepository) Create(ctx context.Context, cue *model.IconCue) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO icon_cues (`+cueColumns+`) VALUES `+cuePlaceholders, cueArgs(cue)...)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// SaveGenerated stores machine-generated cues in one transaction. With
// replaceSuggested, the episode's suggested cues are removed first;
// approved and rejected cues are never touched. Cues that collide with an
// existing row are skipped. It returns how many rows were inserted.
func (r *CueRepository) SaveGenerated(ctx context.Context, episodeID string, cues []model.IconCue, replaceSuggested bool) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if replaceSuggested {
		if _, err := tx.ExecContext(ctx, `DELETE FROM icon_cues WHERE episode_id = ? AND status = ?`,
			episodeID, model.CueStatusSuggested); err != nil {
			return 0, fmt.Errorf("failed to clear suggested cues: %w", err)
		}
	}

	inserted := 0
	for i := range cues {
		res, err := tx.ExecContext(ctx, `INSERT INTO icon_cues (`+cueColumns+`) VALUES `+cuePlaceholders+`
			ON CONFLICT (episode_id, slot_id, timestamp, generated_by) DO NOTHING`, cueArgs(&cues[i])...)
		if err != nil {
			return 0, fmt.Errorf("failed to insert cue: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

func (r *CueRepository) Update(ctx context.Context, cue *model.IconCue) error {
	cue.UpdatedAt = time.Now()
	res, err := r.db.ExecContext(ctx, `
		UPDATE icon_cues SET
			asset_id = ?, timestamp = ?, duration_ms = ?, slot_id = ?, action = ?, transition = ?, easing = ?,
			asset_role = ?, icon_state = ?, is_anchor = ?, anchor_name = ?, status = ?, notes = ?, updated_at = ?
		WHERE id = ?
	`, nullString(cue.AssetID), cue.Timestamp, cue.DurationMs, cue.SlotID, cue.Action, cue.Transition, cue.Easing,
		cue.AssetRole, nullString(cue.IconState), boolToInt(cue.IsAnchor), nullString(cue.AnchorName), cue.Status,
		nullString(cue.Notes), formatTime(cue.UpdatedAt), cue.ID)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *CueRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM icon_cues WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// BulkSetStatus moves every cue of the episode in status from to status to.
func (r *CueRepository) BulkSetStatus(ctx context.Context, episodeID string, from, to model.CueStatus) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE icon_cues SET status = ?, updated_at = ? WHERE episode_id = ? AND status = ?
	`, to, formatTime(time.Now()), episodeID, from)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *CueRepository) query(ctx context.Context, query string, args ...any) ([]model.IconCue, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cues := []model.IconCue{}
	for rows.Next() {
		cue, err := scanCue(rows)
		if err != nil {
			return nil, err
		}
		cues = append(cues, *cue)
	}
	return cues, rows.Err()
}

var cuePlaceholders = "(" + strings.TrimSuffix(strings.Repeat("?, ", 19), ", ") + ")"

func cueArgs(c *model.IconCue) []any {
	return []any{
		c.ID, c.EpisodeID, nullString(c.AssetID), c.Timestamp, c.DurationMs, c.SlotID, c.Action, c.Transition, c.Easing,
		c.AssetRole, nullString(c.IconState), boolToInt(c.IsAnchor), nullString(c.AnchorName), c.Status, c.GeneratedBy,
		c.GenerationConfidence, nullString(c.Notes), formatTime(c.CreatedAt), formatTime(c.UpdatedAt),
	}
}

func scanCue(row rowScanner) (*model.IconCue, error) {
	var c model.IconCue
	var assetID, iconState, anchorName, notes sql.NullString
	var action, status, generatedBy, createdAt, updatedAt string
	var isAnchor int

	err := row.Scan(&c.ID, &c.EpisodeID, &assetID, &c.Timestamp, &c.DurationMs, &c.SlotID, &action, &c.Transition, &c.Easing,
		&c.AssetRole, &iconState, &isAnchor, &anchorName, &status, &generatedBy, &c.GenerationConfidence, &notes,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	c.AssetID = scanString(assetID)
	c.IconState = scanString(iconState)
	c.AnchorName = scanString(anchorName)
	c.Notes = scanString(notes)
	c.IsAnchor = isAnchor == 1
	c.Action = model.CueAction(action)
	c.Status = model.CueStatus(status)
	c.GeneratedBy = model.CueSource(generatedBy)
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
