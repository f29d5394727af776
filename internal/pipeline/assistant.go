package pipeline

import (
	"context"

	"github.com/Mickaeljc/app-bofip/internal/answer"
	"github.com/Mickaeljc/app-bofip/internal/history"
	"github.com/Mickaeljc/app-bofip/internal/kb"
	"go.uber.org/zap"
)

// AnswerRecorder keeps a log of asked questions. Optional.
type AnswerRecorder interface {
	RecordAnswer(history.Entry) (history.Entry, error)
}

// Reply is what the front-end shows for one question.
type Reply struct {
	Question string
	Text     string
	Sentinel bool
}

// Assistant answers questions over a knowledge base built by Prepare.
type Assistant struct {
	answerer *answer.Answerer
	base     kb.KnowledgeBase
	recorder AnswerRecorder
	logger   *zap.Logger
}

func NewAssistant(answerer *answer.Answerer, base kb.KnowledgeBase, recorder AnswerRecorder, logger *zap.Logger) *Assistant {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assistant{answerer: answerer, base: base, recorder: recorder, logger: logger}
}

func (a *Assistant) Entries() int { return a.base.Len() }

// Ask answers one question. Engine failures are returned as errors and are
// not recorded.
func (a *Assistant) Ask(ctx context.Context, question string) (Reply, error) {
	text, err := a.answerer.Answer(ctx, question, a.base)
	if err != nil {
		a.logger.Error("answer failed", zap.String("question", question), zap.Error(err))
		return Reply{Question: question}, err
	}
	reply := Reply{Question: question, Text: text, Sentinel: answer.IsSentinel(text)}

	if a.recorder != nil {
		_, err := a.recorder.RecordAnswer(history.Entry{
			Question: question,
			Answer:   text,
			Sentinel: reply.Sentinel,
			Entries:  a.base.Len(),
		})
		if err != nil {
			a.logger.Warn("recording answer failed", zap.Error(err))
		}
	}
	return reply, nil
}
