package service

import (
	"fmt"
	"strings"

	"github.com/episodeline/pipeline/internal/model"
)

// ReservedAssetRole is used for icon types with no known role.
const ReservedAssetRole = "UI.ICON.RESERVED"

const (
	defaultTransition = "fade_in"
	defaultEasing     = "ease-out"
	defaultCueMs      = 300
)

var iconTypeRoles = map[string]string{
	"voice":          "UI.ICON.VOICE.IDLE",
	"voice_idle":     "UI.ICON.VOICE.IDLE",
	"voice_active":   "UI.ICON.VOICE.ACTIVE",
	"closet":         "UI.ICON.CLOSET",
	"to_do":          "UI.ICON.TODO_LIST",
	"todo":           "UI.ICON.TODO_LIST",
	"to_do_list":     "UI.ICON.TODO_LIST",
	"jewelry":        "UI.ICON.JEWELRY_BOX",
	"jewelry_box":    "UI.ICON.JEWELRY_BOX",
	"purse":          "UI.ICON.PURSE",
	"perfume":        "UI.ICON.PERFUME",
	"location":       "UI.ICON.LOCATION",
	"mail":           "UI.ICON.MAIL",
	"bestie_news":    "UI.ICON.BESTIE_NEWS",
	"coins":          "UI.ICON.COINS",
	"gallery":        "UI.ICON.GALLERY",
	"career_history": "UI.ICON.CAREER_HISTORY",
}

// IconTypeToAssetRole maps a short icon name such as "closet" to its asset
// role. Unknown names map to ReservedAssetRole.
func IconTypeToAssetRole(iconType string) string {
	if role, ok := iconTypeRoles[strings.ToLower(strings.TrimSpace(iconType))]; ok {
		return role
	}
	return ReservedAssetRole
}

// keywordRule infers a cue from words in a scene name.
type keywordRule struct {
	keywords   []string
	role       string
	slot       string
	offset     float64
	transition string
	durationMs int
	confidence float64
	note       string
}

var keywordRules = []keywordRule{
	{
		keywords: []string{"styling", "wardrobe"},
		role:     "UI.ICON.CLOSET", slot: "slot_2", offset: 1.0,
		transition: "fade_in", durationMs: 300, confidence: 0.85,
		note: "Inferred from scene name: styling/wardrobe",
	},
	{
		keywords: []string{"mail", "message", "notification"},
		role:     "UI.ICON.MAIL", slot: "slot_3", offset: 0.5,
		transition: "pop_in", durationMs: 200, confidence: 0.90,
		note: "Inferred from scene name: mail/notification",
	},
	{
		keywords: []string{"to-do", "todo", "task"},
		role:     "UI.ICON.TODO_LIST", slot: "slot_2", offset: 1.5,
		transition: "slide_in", durationMs: 400, confidence: 0.88,
		note: "Inferred from scene name: to-do/task",
	},
}

func (r keywordRule) matches(name string) bool {
	for _, k := range r.keywords {
		if strings.Contains(name, k) {
			return true
		}
	}
	return false
}

type outcomeKind int

const (
	outcomeNoCues outcomeKind = iota
	outcomeProduced
)

// ruleOutcome is the result of the scene-metadata method.
type ruleOutcome struct {
	kind outcomeKind
	cues []model.IconCue
}

func outcomeOf(cues []model.IconCue) ruleOutcome {
	if len(cues) == 0 {
		return ruleOutcome{kind: outcomeNoCues}
	}
	return ruleOutcome{kind: outcomeProduced, cues: cues}
}

// sceneMetadataCues applies, for each scene in order, its icon hints, its
// interactive elements and then the scene-name keywords. Hints and
// elements without a slot mapping are skipped and reported via skipped.
func sceneMetadataCues(scenes []model.Scene, mappings map[string]model.IconSlotMapping, skipped func(string)) ruleOutcome {
	var cues []model.IconCue
	for _, scene := range scenes {
		for _, hint := range scene.Metadata.IconsNeeded {
			role := IconTypeToAssetRole(hint)
			m, ok := mappings[role]
			if !ok {
				skipped(hint)
				continue
			}
			cues = append(cues, model.IconCue{
				Timestamp:            scene.StartTime + 2.0,
				SlotID:               m.SlotID,
				Action:               model.CueActionAppear,
				Transition:           "fade_in",
				DurationMs:           300,
				Easing:               defaultEasing,
				AssetRole:            role,
				GeneratedBy:          model.CueSourceSceneMetadata,
				GenerationConfidence: 0.95,
				Notes:                strPtr("Auto-generated from scene: " + scene.Name),
			})
		}

		for _, element := range scene.Metadata.InteractiveElements {
			iconType := strings.Replace(strings.Replace(element, "_open", "", 1), "_click", "", 1)
			role := IconTypeToAssetRole(iconType)
			m, ok := mappings[role]
			if !ok {
				skipped(element)
				continue
			}
			action := model.CueActionAppear
			if strings.Contains(element, "open") {
				action = model.CueActionOpen
			}
			cues = append(cues, model.IconCue{
				Timestamp:            scene.StartTime + 5.0,
				SlotID:               m.SlotID,
				Action:               action,
				Transition:           "slide_in",
				DurationMs:           400,
				Easing:               defaultEasing,
				AssetRole:            role,
				GeneratedBy:          model.CueSourceSceneMetadata,
				GenerationConfidence: 0.90,
				Notes:                strPtr("Interactive element: " + element),
			})
		}

		cues = append(cues, inferFromSceneName(scene)...)
	}
	return outcomeOf(cues)
}

func inferFromSceneName(scene model.Scene) []model.IconCue {
	name := strings.ToLower(scene.Name)
	var cues []model.IconCue
	for _, r := range keywordRules {
		if !r.matches(name) {
			continue
		}
		cues = append(cues, model.IconCue{
			Timestamp:            scene.StartTime + r.offset,
			SlotID:               r.slot,
			Action:               model.CueActionAppear,
			Transition:           r.transition,
			DurationMs:           r.durationMs,
			Easing:               defaultEasing,
			AssetRole:            r.role,
			GeneratedBy:          model.CueSourceSceneInference,
			GenerationConfidence: r.confidence,
			Notes:                strPtr(r.note),
		})
	}
	return cues
}

// persistentAnchors are appended to every generation.
func persistentAnchors() []model.IconCue {
	return []model.IconCue{
		{
			Timestamp:            8.0,
			SlotID:               "slot_1",
			Action:               model.CueActionAppear,
			Transition:           "fade_in",
			DurationMs:           500,
			Easing:               defaultEasing,
			AssetRole:            "UI.ICON.VOICE.IDLE",
			IconState:            strPtr("idle"),
			IsAnchor:             true,
			AnchorName:           strPtr("voice_icon_persistent"),
			GeneratedBy:          model.CueSourcePersistentIcons,
			GenerationConfidence: 1.0,
			Notes:                strPtr("Persistent voice control icon"),
		},
		{
			Timestamp:            10.0,
			SlotID:               "slot_5",
			Action:               model.CueActionAppear,
			Transition:           "fade_in",
			DurationMs:           500,
			Easing:               defaultEasing,
			AssetRole:            "UI.ICON.GALLERY",
			IsAnchor:             true,
			AnchorName:           strPtr("gallery_icon_persistent"),
			GeneratedBy:          model.CueSourcePersistentIcons,
			GenerationConfidence: 1.0,
			Notes:                strPtr("Persistent gallery icon"),
		},
	}
}

// formatCueTime renders seconds as mm:ss.s.
func formatCueTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	mins := int(seconds / 60)
	secs := seconds - float64(mins*60)
	return fmt.Sprintf("%02d:%04.1f", mins, secs)
}

func strPtr(s string) *string {
	return &s
}
