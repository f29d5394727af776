package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var asciiLogo = []string{
	`██████╗  ██████╗ ███████╗██╗██████╗ `,
	`██╔══██╗██╔═══██╗██╔════╝██║██╔══██╗`,
	`██████╔╝██║   ██║█████╗  ██║██████╔╝`,
	`██╔══██╗██║   ██║██╔══╝  ██║██╔═══╝ `,
	`██████╔╝╚██████╔╝██║     ██║██║     `,
	`╚═════╝  ╚═════╝ ╚═╝     ╚═╝╚═╝     `,
}

// renderWelcome is shown while the knowledge base is being prepared.
func renderWelcome(width, height int, spinner string) string {
	var lines []string
	for _, l := range asciiLogo {
		lines = append(lines, logoStyle.Render(l))
	}
	lines = append(lines, "")
	lines = append(lines, welcomeDimStyle.Render("Bulletin officiel des finances publiques"))
	lines = append(lines, "")
	lines = append(lines, spinner+" Préparation de la base de connaissances...")

	content := strings.Join(lines, "\n")
	contentHeight := strings.Count(content, "\n") + 1

	topPad := (height - contentHeight) / 3
	if topPad < 0 {
		topPad = 0
	}

	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Top,
		strings.Repeat("\n", topPad)+content)
}
