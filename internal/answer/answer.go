package answer

import (
	"context"
	"fmt"
	"strings"

	"github.com/Mickaeljc/app-bofip/internal/kb"
)

// Fixed replies returned instead of calling the engine.
const (
	InvalidQuestion = "Question invalide : veuillez saisir une question."
	NoData          = "Aucune donnée disponible pour répondre à cette question."
)

// Engine is the question-answering model. It receives the question and
// the full context and returns the answer text.
type Engine interface {
	Answer(ctx context.Context, question, passage string) (string, error)
}

// EngineFunc adapts a function to Engine.
type EngineFunc func(ctx context.Context, question, passage string) (string, error)

func (f EngineFunc) Answer(ctx context.Context, question, passage string) (string, error) {
	return f(ctx, question, passage)
}

type Answerer struct {
	engine Engine
}

func New(engine Engine) *Answerer {
	return &Answerer{engine: engine}
}

// Answer validates the inputs, then asks the engine over the knowledge
// base context. Blank questions and empty knowledge bases get a sentinel
// reply with a nil error; only engine failures are errors.
func (a *Answerer) Answer(ctx context.Context, question string, base kb.KnowledgeBase) (string, error) {
	if strings.TrimSpace(question) == "" {
		return InvalidQuestion, nil
	}
	passage := base.Context()
	if base.Len() == 0 || strings.TrimSpace(passage) == "" {
		return NoData, nil
	}
	if a.engine == nil {
		return "", fmt.Errorf("no answering engine configured")
	}

	text, err := a.engine.Answer(ctx, question, passage)
	if err != nil {
		return "", fmt.Errorf("answering: %w", err)
	}
	return text, nil
}

// IsSentinel reports whether s is one of the fixed replies.
func IsSentinel(s string) bool {
	return s == InvalidQuestion || s == NoData
}
