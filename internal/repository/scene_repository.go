package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/episodeline/pipeline/internal/model"
)

const sceneColumns = `id, episode_id, scene_number, name, type, start_time, end_time, duration,
	metadata, thumbnail_key, characteristics, source, created_at`

type SceneRepository struct {
	db *sql.DB
}

func NewSceneRepository(db *DB) *SceneRepository {
	return &SceneRepository{db: db.Conn()}
}

func (r *SceneRepository) Create(ctx context.Context, s *model.Scene) error {
	return insertScene(ctx, r.db, s)
}

// ListByEpisode returns scenes ordered by scene number.
func (r *SceneRepository) ListByEpisode(ctx context.Context, episodeID string) ([]model.Scene, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sceneColumns+` FROM scenes WHERE episode_id = ? ORDER BY scene_number ASC, start_time ASC
	`, episodeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	scenes := []model.Scene{}
	for rows.Next() {
		s, err := scanScene(rows)
		if err != nil {
			return nil, err
		}
		scenes = append(scenes, *s)
	}
	return scenes, rows.Err()
}

// ReplaceDetected swaps the episode's detected scenes for a new set in one
// transaction. Manual scenes are untouched.
func (r *SceneRepository) ReplaceDetected(ctx context.Context, episodeID string, scenes []model.Scene) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM scenes WHERE episode_id = ? AND source = ?`,
		episodeID, model.SceneSourceDetected); err != nil {
		return fmt.Errorf("failed to clear detected scenes: %w", err)
	}
	for i := range scenes {
		if err := insertScene(ctx, tx, &scenes[i]); err != nil {
			return fmt.Errorf("failed to insert scene %d: %w", scenes[i].SceneNumber, err)
		}
	}
	return tx.Commit()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertScene(ctx context.Context, db execer, s *model.Scene) error {
	meta, err := json.Marshal(s.Metadata)
	if err != nil {
		return err
	}
	var chars sql.NullString
	if s.Characteristics != nil {
		b, err := json.Marshal(s.Characteristics)
		if err != nil {
			return err
		}
		chars = sql.NullString{String: string(b), Valid: true}
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO scenes (`+sceneColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.EpisodeID, s.SceneNumber, s.Name, s.Type, s.StartTime, s.EndTime, s.Duration,
		string(meta), nullString(s.ThumbnailKey), chars, s.Source, formatTime(s.CreatedAt))
	return err
}

func scanScene(row rowScanner) (*model.Scene, error) {
	var s model.Scene
	var meta, source, createdAt string
	var thumb, chars sql.NullString

	if err := row.Scan(&s.ID, &s.EpisodeID, &s.SceneNumber, &s.Name, &s.Type, &s.StartTime, &s.EndTime, &s.Duration,
		&meta, &thumb, &chars, &source, &createdAt); err != nil {
		return nil, err
	}

	if meta != "" {
		if err := json.Unmarshal([]byte(meta), &s.Metadata); err != nil {
			return nil, fmt.Errorf("invalid metadata for scene %s: %w", s.ID, err)
		}
	}
	if chars.Valid && chars.String != "" {
		var c model.Characteristics
		if err := json.Unmarshal([]byte(chars.String), &c); err == nil {
			s.Characteristics = &c
		}
	}
	s.ThumbnailKey = scanString(thumb)
	s.Source = model.SceneSource(source)
	s.CreatedAt = parseTime(createdAt)
	return &s, nil
}
