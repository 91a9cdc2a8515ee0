package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/episodeline/pipeline/internal/model"
)

// EpisodeRepository reads episode context: scripts, formulas, assets and
// the icon slot table.
type EpisodeRepository struct {
	db *sql.DB
}

func NewEpisodeRepository(db *DB) *EpisodeRepository {
	return &EpisodeRepository{db: db.Conn()}
}

func (r *EpisodeRepository) CreateEpisode(ctx context.Context, ep *model.Episode) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO episodes (id, title, created_at) VALUES (?, ?, ?)`,
		ep.ID, ep.Title, formatTime(ep.CreatedAt))
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *EpisodeRepository) GetEpisode(ctx context.Context, id string) (*model.Episode, error) {
	var ep model.Episode
	var createdAt string
	err := r.db.QueryRowContext(ctx, `SELECT id, title, created_at FROM episodes WHERE id = ?`, id).
		Scan(&ep.ID, &ep.Title, &createdAt)
	if err := wrapNotFound(err, "episode"); err != nil {
		return nil, err
	}
	ep.CreatedAt = parseTime(createdAt)
	return &ep, nil
}

func (r *EpisodeRepository) AddScript(ctx context.Context, s *model.EpisodeScript) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO episode_scripts (id, episode_id, content, created_at) VALUES (?, ?, ?, ?)`,
		s.ID, s.EpisodeID, s.Content, formatTime(s.CreatedAt))
	return err
}

// LatestScript returns nil without error when the episode has no script.
func (r *EpisodeRepository) LatestScript(ctx context.Context, episodeID string) (*model.EpisodeScript, error) {
	var s model.EpisodeScript
	var createdAt string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, episode_id, content, created_at FROM episode_scripts
		WHERE episode_id = ? ORDER BY created_at DESC LIMIT 1
	`, episodeID).Scan(&s.ID, &s.EpisodeID, &s.Content, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.CreatedAt = parseTime(createdAt)
	return &s, nil
}

func (r *EpisodeRepository) SetFormula(ctx context.Context, f *model.EpisodeFormula) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO episode_formulas (id, episode_id, name, config) VALUES (?, ?, ?, ?)
		ON CONFLICT (episode_id) DO UPDATE SET name = excluded.name, config = excluded.config
	`, f.ID, f.EpisodeID, f.Name, string(f.Config))
	return err
}

// Formula returns nil without error when the episode has no formula.
func (r *EpisodeRepository) Formula(ctx context.Context, episodeID string) (*model.EpisodeFormula, error) {
	var f model.EpisodeFormula
	var cfg sql.NullString
	err := r.db.QueryRowContext(ctx, `SELECT id, episode_id, name, config FROM episode_formulas WHERE episode_id = ?`, episodeID).
		Scan(&f.ID, &f.EpisodeID, &f.Name, &cfg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if cfg.Valid && cfg.String != "" {
		f.Config = []byte(cfg.String)
	}
	return &f, nil
}

func (r *EpisodeRepository) AddAsset(ctx context.Context, a *model.Asset) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO assets (id, episode_id, asset_role, name, created_at) VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.EpisodeID, a.AssetRole, a.Name, formatTime(a.CreatedAt))
	return err
}

// LatestAssetID returns the newest asset of role scoped to the episode, or
// nil when there is none.
func (r *EpisodeRepository) LatestAssetID(ctx context.Context, episodeID, role string) (*string, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `
		SELECT id FROM assets WHERE asset_role = ? AND episode_id = ?
		ORDER BY created_at DESC LIMIT 1
	`, role, episodeID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// SlotMappings returns the full icon slot table keyed by asset role.
func (r *EpisodeRepository) SlotMappings(ctx context.Context) (map[string]model.IconSlotMapping, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT asset_role, slot_id, slot_category, icon_type, display_position, is_persistent
		FROM icon_slot_mappings
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	mappings := map[string]model.IconSlotMapping{}
	for rows.Next() {
		var m model.IconSlotMapping
		var persistent int
		if err := rows.Scan(&m.AssetRole, &m.SlotID, &m.SlotCategory, &m.IconType, &m.DisplayPosition, &persistent); err != nil {
			return nil, err
		}
		m.IsPersistent = persistent == 1
		mappings[m.AssetRole] = m
	}
	return mappings, rows.Err()
}
