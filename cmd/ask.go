package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/Mickaeljc/app-bofip/internal/pipeline"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	answerStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#04B575", Dark: "#25D366"})
	sentinelStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#B58900", Dark: "#E5C07B"}).Italic(true)
	warnStyle     = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#E1000F", Dark: "#F25D64"})
)

var askCmd = &cobra.Command{
	Use:   "ask <question...>",
	Short: "Answer one question and exit",
	Long: `Build the knowledge base (from the local snapshot when there is one) and
answer a single question on stdout.

Example:
  bofip ask "Quel est le taux normal de TVA ?"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()

		out := a.pipeline.Prepare(ctx, flagRefresh)
		reportOutcome(out)

		if t := a.answerTimeout(); t > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, t)
			defer cancel()
		}
		assistant := pipeline.NewAssistant(a.answerer(), out.KB, a.recorder(), logger.Named("answer"))
		reply, err := assistant.Ask(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}

		if reply.Sentinel {
			fmt.Println(sentinelStyle.Render(reply.Text))
		} else {
			fmt.Println(answerStyle.Render(reply.Text))
		}
		return nil
	},
}

// reportOutcome prints sync problems to stderr. Neither stops the command:
// whatever was fetched is still used.
func reportOutcome(out pipeline.Outcome) {
	switch {
	case out.FetchErr != nil && out.FromCache:
		fmt.Fprintln(os.Stderr, warnStyle.Render(fmt.Sprintf("[warn] synchronisation échouée, snapshot conservé (%d enregistrements) : %v", out.Dataset.Len(), out.FetchErr)))
	case out.FetchErr != nil:
		fmt.Fprintln(os.Stderr, warnStyle.Render(fmt.Sprintf("[warn] synchronisation incomplète (%d enregistrements) : %v", out.Dataset.Len(), out.FetchErr)))
	}
	if out.SaveErr != nil {
		fmt.Fprintln(os.Stderr, warnStyle.Render(fmt.Sprintf("[warn] snapshot non enregistré : %v", out.SaveErr)))
	}
}
