package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/episodeline/pipeline/internal/model"
)

const (
	maxPromptScriptChars = 2000
	aiConfidence         = 0.75
)

var errNoJSONArray = errors.New("no JSON array in completion")

const cueSystemPrompt = `You place UI icon cues on the timeline of an episode.
Respond with a JSON array only. Suggest an icon only when the script clearly calls for it.`

const slotLegend = `Available icons:
- slot_1: voice (persistent control icon)
- slot_2: closet, to_do_list, jewelry_box, purse, perfume, location
- slot_3: mail, bestie_news, coins (notifications)
- slot_5: gallery (persistent career history)`

// buildCuePrompt bounds the script excerpt so prompts stay a fixed size.
func buildCuePrompt(ec *model.EpisodeContext) string {
	script := ""
	if ec.Script != nil {
		script = truncateRunes(ec.Script.Content, maxPromptScriptChars)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Episode: %s\n\n", ec.Episode.Title)
	fmt.Fprintf(&b, "Script excerpt:\n%s\n\n", script)
	b.WriteString(slotLegend)
	b.WriteString(`

Return a JSON array where each element looks like:
{"timestamp": 12.5, "slot_id": "slot_2", "action": "appear", "icon_type": "closet", "notes": "wardrobe is mentioned"}`)
	return b.String()
}

type aiSuggestion struct {
	Timestamp *float64 `json:"timestamp"`
	SlotID    string   `json:"slot_id"`
	Action    string   `json:"action"`
	IconType  string   `json:"icon_type"`
	Notes     string   `json:"notes"`
}

// extractJSONArray returns the outermost [...] span of text, which may be
// wrapped in prose or code fences.
func extractJSONArray(text string) (string, bool) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

// parseAISuggestions turns a completion into cues. Missing fields fall
// back to the generator defaults.
func parseAISuggestions(text string) ([]model.IconCue, error) {
	raw, ok := extractJSONArray(text)
	if !ok {
		return nil, errNoJSONArray
	}

	var suggestions []aiSuggestion
	if err := json.Unmarshal([]byte(raw), &suggestions); err != nil {
		return nil, fmt.Errorf("invalid suggestion array: %w", err)
	}

	cues := make([]model.IconCue, 0, len(suggestions))
	for _, s := range suggestions {
		ts := 0.0
		if s.Timestamp != nil && *s.Timestamp > 0 {
			ts = *s.Timestamp
		}
		slot := s.SlotID
		if slot == "" {
			slot = "slot_2"
		}
		notes := s.Notes
		if notes == "" {
			notes = "AI-generated suggestion"
		}

		cues = append(cues, model.IconCue{
			Timestamp:            ts,
			SlotID:               slot,
			Action:               parseCueAction(s.Action),
			Transition:           defaultTransition,
			DurationMs:           defaultCueMs,
			Easing:               defaultEasing,
			AssetRole:            IconTypeToAssetRole(s.IconType),
			GeneratedBy:          model.CueSourceAIAnalysis,
			GenerationConfidence: aiConfidence,
			Notes:                strPtr(notes),
		})
	}
	return cues, nil
}

func parseCueAction(s string) model.CueAction {
	switch a := model.CueAction(strings.ToLower(strings.TrimSpace(s))); a {
	case model.CueActionAppear, model.CueActionOpen, model.CueActionDisappear,
		model.CueActionClose, model.CueActionHighlight, model.CueActionStateChange:
		return a
	default:
		return model.CueActionAppear
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
