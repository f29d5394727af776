package tui

import (
	"github.com/Mickaeljc/app-bofip/internal/pipeline"
)

type kbReadyMsg struct {
	outcome pipeline.Outcome
}

type answerMsg struct {
	reply pipeline.Reply
}

type answerErrMsg struct {
	question string
	err      error
}
