package service

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/episodeline/pipeline/internal/apperr"
	"github.com/episodeline/pipeline/internal/model"
)

// CueExport is an approved cue sheet. Body is set for the tabular formats;
// JSON exports carry the cues themselves.
type CueExport struct {
	Format      model.ExportFormat `json:"format"`
	ContentType string             `json:"-"`
	Filename    string             `json:"-"`
	Cues        []model.IconCue    `json:"cues"`
	Body        string             `json:"-"`
}

// ExportApproved renders the episode's approved cues in timestamp order.
func (s *CueService) ExportApproved(ctx context.Context, episodeID string, format model.ExportFormat) (*CueExport, error) {
	const op = "ExportApproved"
	if format == "" {
		format = model.ExportJSON
	}

	cues, err := s.cues.ListByEpisode(ctx, episodeID, model.CueFilter{Status: model.CueStatusApproved, Sort: "timestamp"})
	if err != nil {
		return nil, storeError(op, "cues", err)
	}

	out := &CueExport{Format: format, Cues: cues}
	switch format {
	case model.ExportJSON:
		out.ContentType = "application/json"
		out.Filename = fmt.Sprintf("icon_cues_%s.json", episodeID)
	case model.ExportMarkdown:
		out.ContentType = "text/markdown"
		out.Filename = fmt.Sprintf("icon_cues_%s.md", episodeID)
		out.Body = "# Icon Cue Sheet\n\n" + cueTable(cues).RenderMarkdown() + "\n"
	case model.ExportCSV:
		out.ContentType = "text/csv"
		out.Filename = fmt.Sprintf("icon_cues_%s.csv", episodeID)
		out.Body = cueTable(cues).RenderCSV() + "\n"
	default:
		return nil, apperr.ValidationFields(op, "format must be json, markdown or csv", map[string]string{"format": "oneof"})
	}
	return out, nil
}

func cueTable(cues []model.IconCue) table.Writer {
	tw := table.NewWriter()
	tw.AppendHeader(table.Row{"Time", "Slot", "Action", "Icon", "Notes"})
	for _, c := range cues {
		icon := c.AssetRole
		if icon == "" {
			icon = "N/A"
		}
		notes := ""
		if c.Notes != nil {
			notes = *c.Notes
		}
		tw.AppendRow(table.Row{formatCueTime(c.Timestamp), c.SlotID, string(c.Action), icon, notes})
	}
	return tw
}
