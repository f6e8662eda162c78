package exporter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/uvabd17/liveleaderboard/internal/models"
)

type StandingsExport struct {
	EventSlug   string            `json:"eventSlug"`
	GeneratedAt time.Time         `json:"generatedAt"`
	Leaderboard []models.Standing `json:"leaderboard"`
}

// Export renders standings as json or text and returns the content type.
func Export(format, eventSlug string, standings []models.Standing, now time.Time) ([]byte, string, error) {
	switch format {
	case "json", "":
		return ExportJSON(eventSlug, standings, now)
	case "text":
		return ExportText(standings)
	}
	return nil, "", fmt.Errorf("unknown format %q (use json|text)", format)
}

func ExportJSON(eventSlug string, standings []models.Standing, now time.Time) ([]byte, string, error) {
	if standings == nil {
		standings = []models.Standing{}
	}
	b, err := json.MarshalIndent(StandingsExport{EventSlug: eventSlug, GeneratedAt: now.UTC(), Leaderboard: standings}, "", "  ")
	if err != nil {
		return nil, "", err
	}
	return append(b, '\n'), "application/json", nil
}

func ExportText(standings []models.Standing) ([]byte, string, error) {
	buf := new(bytes.Buffer)
	tw := tabwriter.NewWriter(buf, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tNAME\tKIND\tSCORE")
	for _, s := range standings {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\n", s.Rank, s.Name, s.Kind, s.Score)
	}
	if err := tw.Flush(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), "text/plain; charset=utf-8", nil
}
