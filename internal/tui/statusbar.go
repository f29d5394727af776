package tui

import (
	"fmt"
	"time"

	"github.com/Mickaeljc/app-bofip/internal/pipeline"
	"github.com/charmbracelet/lipgloss"
)

type barState struct {
	ready   bool
	outcome pipeline.Outcome
	asking  bool
	asked   int
}

func renderStatusBar(s barState, width int) string {
	left := " chargement de la base..."
	if s.ready {
		left = fmt.Sprintf(" %d entrées · %s", s.outcome.KB.Len(), datasetLabel(s.outcome))
		if s.asked > 0 {
			left += fmt.Sprintf(" · %d question(s)", s.asked)
		}
	}

	right := " enter envoyer  ctrl+r resynchroniser  esc quitter "
	if s.asking {
		right = " réponse en cours... "
	}

	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 0 {
		gap = 0
	}

	bar := left + fmt.Sprintf("%*s", gap, "") + right

	return statusBarStyle.Width(width).Render(bar)
}

func datasetLabel(o pipeline.Outcome) string {
	src := "synchronisé"
	if o.FromCache {
		src = "cache"
	}
	if !o.Dataset.FetchedAt.IsZero() {
		src += " " + relativeTime(o.Dataset.FetchedAt)
	}
	switch {
	case o.FetchErr != nil && o.Dataset.Len() == 0:
		return statusWarnStyle.Render("source injoignable")
	case o.FetchErr != nil && o.FromCache:
		return statusWarnStyle.Render(src + " (échec de la synchro)")
	case !o.Complete():
		return statusWarnStyle.Render(src + " (partiel)")
	case o.SaveErr != nil:
		return statusWarnStyle.Render(src + " (non enregistré)")
	}
	return statusOKStyle.Render(src)
}

func relativeTime(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "à l'instant"
	case d < time.Hour:
		return fmt.Sprintf("il y a %dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("il y a %dh", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("il y a %dj", int(d.Hours()/24))
	default:
		return "du " + t.Format("02/01/2006")
	}
}
