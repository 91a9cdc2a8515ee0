package model

import (
	"encoding/json"
	"time"
)

type Episode struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
}

type EpisodeScript struct {
	ID        string    `json:"id"`
	EpisodeID string    `json:"episodeId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

type EpisodeFormula struct {
	ID        string          `json:"id"`
	EpisodeID string          `json:"episodeId"`
	Name      string          `json:"name"`
	Config    json.RawMessage `json:"config,omitempty"`
}

type Asset struct {
	ID        string    `json:"id"`
	EpisodeID string    `json:"episodeId"`
	AssetRole string    `json:"assetRole"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// IconSlotMapping places an asset role into a screen slot.
type IconSlotMapping struct {
	AssetRole       string `json:"assetRole"`
	SlotID          string `json:"slotId"`
	SlotCategory    string `json:"slotCategory"`
	IconType        string `json:"iconType"`
	DisplayPosition string `json:"displayPosition"`
	IsPersistent    bool   `json:"isPersistent"`
}

// EpisodeContext is everything cue generation reads about an episode.
type EpisodeContext struct {
	Episode Episode
	Scenes  []Scene
	Formula *EpisodeFormula
	Script  *EpisodeScript
}
