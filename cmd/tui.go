package cmd

import (
	"github.com/Mickaeljc/app-bofip/internal/tui"
	"github.com/spf13/cobra"
)

func runTUI(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	return tui.Run(tui.RunOpts{
		Pipeline:      a.pipeline,
		Answerer:      a.answerer(),
		Recorder:      a.recorder(),
		Logger:        logger.Named("tui"),
		ForceRefresh:  flagRefresh,
		AnswerTimeout: a.answerTimeout(),
	})
}
