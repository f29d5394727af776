package tui

import (
	"strings"
	"time"
)

// exchange is one question and what came back for it.
type exchange struct {
	question string
	answer   string
	sentinel bool
	err      error
	pending  bool
	askedAt  time.Time
}

func renderExchange(e exchange, width int) string {
	if width < 10 {
		width = 30
	}

	q := questionStyle.Render("> "+truncateStr(e.question, width-4)) + " " + timeStyle.Render(e.askedAt.Format("15:04"))

	var body string
	switch {
	case e.pending:
		body = timeStyle.Render("  ...")
	case e.err != nil:
		body = errorStyle.Width(width).Render(indent(wrapText("Erreur : "+e.err.Error(), width-2)))
	case e.sentinel:
		body = sentinelStyle.Width(width).Render(indent(wrapText(e.answer, width-2)))
	default:
		body = answerStyle.Width(width).Render(indent(wrapText(e.answer, width-2)))
	}
	return q + "\n" + body
}

// renderTranscript shows the latest exchanges that fit in height, scrolled
// up by scroll lines.
func renderTranscript(exchanges []exchange, width, height, scroll int) string {
	if len(exchanges) == 0 {
		return centerText("Posez une question sur la TVA, l'agriculture ou les impôts.", width, height)
	}

	var blocks []string
	for _, e := range exchanges {
		blocks = append(blocks, renderExchange(e, width))
	}
	lines := strings.Split(strings.Join(blocks, "\n\n"), "\n")

	end := len(lines) - scroll
	if end < height {
		end = min(height, len(lines))
	}
	start := end - height
	if start < 0 {
		start = 0
	}
	lines = lines[start:end]

	if len(lines) < height {
		lines = append(lines, make([]string, height-len(lines))...)
	}
	return strings.Join(lines, "\n")
}

func truncateStr(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n <= 3 {
		return string(runes[:n])
	}
	return string(runes[:n-3]) + "..."
}

// wrapText wraps on word boundaries, keeping existing line breaks.
func wrapText(s string, width int) string {
	if width <= 0 {
		return s
	}
	var out []string
	for _, para := range strings.Split(s, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			out = append(out, "")
			continue
		}
		line := words[0]
		for _, w := range words[1:] {
			if len([]rune(line))+1+len([]rune(w)) > width {
				out = append(out, line)
				line = w
			} else {
				line += " " + w
			}
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func indent(s string) string {
	return "  " + strings.ReplaceAll(s, "\n", "\n  ")
}

func centerText(s string, width, height int) string {
	pad := (width - len([]rune(s))) / 2
	if pad < 0 {
		pad = 0
	}
	return strings.Repeat("\n", height/3) + strings.Repeat(" ", pad) + s
}
