// Package kb turns a dataset into the knowledge base handed to the
// question-answering engine.
package kb

import (
	"fmt"
	"strings"

	"github.com/Mickaeljc/app-bofip/internal/store"
)

const (
	PlaceholderTitle       = "Titre inconnu"
	PlaceholderDescription = "Description indisponible"
	PlaceholderSubject     = "Sujet inconnu"
)

// Template selects how an entry's content is rendered.
type Template int

const (
	// TemplateFull renders title, description and subject lines.
	TemplateFull Template = iota
	// TemplateShort leaves the subject line out.
	TemplateShort
)

// ParseTemplate maps the config value to a Template. The empty string is
// TemplateFull.
func ParseTemplate(s string) (Template, error) {
	switch s {
	case "", "full":
		return TemplateFull, nil
	case "short":
		return TemplateShort, nil
	default:
		return TemplateFull, fmt.Errorf("unknown template %q", s)
	}
}

func (t Template) String() string {
	if t == TemplateShort {
		return "short"
	}
	return "full"
}

type Options struct {
	// Keywords are matched as case-sensitive substrings of the subject.
	Keywords []string
	// Filter disables keyword matching when false; every record is kept.
	Filter    bool
	Template  Template
	StripHTML bool
}

type Entry struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type KnowledgeBase []Entry

func (k KnowledgeBase) Len() int { return len(k) }

// Empty reports whether there is nothing to answer from: no entries, or
// only blank content.
func (k KnowledgeBase) Empty() bool {
	return strings.TrimSpace(k.Context()) == ""
}

// Context joins every entry's content with a newline, in order.
func (k KnowledgeBase) Context() string {
	parts := make([]string, len(k))
	for i, e := range k {
		parts[i] = e.Content
	}
	return strings.Join(parts, "\n")
}

// Build filters ds and renders the kept records. It has no side effects
// and the same inputs always give the same output.
func Build(ds store.Dataset, opts Options) KnowledgeBase {
	out := KnowledgeBase{}
	for _, r := range ds.Records {
		title := valueOr(r.Title, PlaceholderTitle)
		description := valueOr(r.Description, PlaceholderDescription)
		subject := valueOr(r.Subject, PlaceholderSubject)

		if opts.Filter && !Matches(subject, opts.Keywords) {
			continue
		}
		if opts.StripHTML && r.Description != nil {
			description = plainText(description)
		}

		out = append(out, Entry{
			Title:   title,
			Content: render(opts.Template, title, description, subject),
		})
	}
	return out
}

// Matches reports whether subject contains one of keywords.
func Matches(subject string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(subject, kw) {
			return true
		}
	}
	return false
}

func render(t Template, title, description, subject string) string {
	if t == TemplateShort {
		return fmt.Sprintf("Titre: %s\nDescription: %s", title, description)
	}
	return fmt.Sprintf("Titre: %s\nDescription: %s\nSujet: %s", title, description, subject)
}

func valueOr(p *string, fallback string) string {
	if p == nil {
		return fallback
	}
	return *p
}
