// Package content serves the embedded methodology material: phase
// document templates, methodology guides, validation checklists, and
// error explanations. Everything is served verbatim.
package content

import (
	"embed"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/specd/internal/document"
)

//go:embed templates guides checklists explanations
var files embed.FS

var (
	// ErrUnknownTopic indicates a guide topic that is not in the
	// library.
	ErrUnknownTopic = errors.New("unknown guide topic")

	// ErrUnknownErrorKind indicates an explanation that is not in the
	// library.
	ErrUnknownErrorKind = errors.New("unknown error kind")
)

// guideTopics is the canonical topic order for listings.
var guideTopics = []string{
	"workflow",
	"requirements",
	"design",
	"tasks",
	"ears-format",
	"phase-transitions",
	"best-practices",
	"troubleshooting",
}

// errorKinds mirror the message families the validators produce.
var errorKinds = []string{
	"ears_format",
	"user_story_format",
	"missing_section",
	"numbering",
	"task_format",
	"traceability",
}

// TopicInfo describes one guide for listings.
type TopicInfo struct {
	Name  string `json:"name"`
	Title string `json:"title"`
}

// Library provides lookup over the embedded content.
type Library struct {
	topics map[string]bool
	kinds  map[string]bool
}

// NewLibrary creates a content Library.
func NewLibrary() *Library {
	l := &Library{
		topics: make(map[string]bool, len(guideTopics)),
		kinds:  make(map[string]bool, len(errorKinds)),
	}
	for _, t := range guideTopics {
		l.topics[t] = true
	}
	for _, k := range errorKinds {
		l.kinds[k] = true
	}
	return l
}

// Template returns the starter markdown for a phase document.
func (l *Library) Template(docType document.Type) (string, error) {
	t, err := document.ParseType(string(docType))
	if err != nil {
		return "", err
	}
	return l.read("templates/" + string(t) + ".md")
}

// Checklist returns the validation checklist for a document type.
func (l *Library) Checklist(docType document.Type) (string, error) {
	t, err := document.ParseType(string(docType))
	if err != nil {
		return "", err
	}
	return l.read("checklists/" + string(t) + ".md")
}

// Guide returns the methodology guide for a topic.
func (l *Library) Guide(topic string) (string, error) {
	if !l.topics[topic] {
		return "", fmt.Errorf("%w: %q (available: %s)", ErrUnknownTopic, topic, strings.Join(guideTopics, ", "))
	}
	return l.read("guides/" + topic + ".md")
}

// Topics lists the available guides in canonical order with their
// titles.
func (l *Library) Topics() []TopicInfo {
	out := make([]TopicInfo, 0, len(guideTopics))
	for _, t := range guideTopics {
		title := t
		if content, err := l.read("guides/" + t + ".md"); err == nil {
			title = firstTitle(content)
		}
		out = append(out, TopicInfo{Name: t, Title: title})
	}
	return out
}

// Explain returns the explanation for a validation error kind.
func (l *Library) Explain(kind string) (string, error) {
	if !l.kinds[kind] {
		return "", fmt.Errorf("%w: %q (available: %s)", ErrUnknownErrorKind, kind, strings.Join(l.ErrorKinds(), ", "))
	}
	return l.read("explanations/" + kind + ".md")
}

// ErrorKinds lists the explainable error kinds, sorted.
func (l *Library) ErrorKinds() []string {
	out := make([]string, len(errorKinds))
	copy(out, errorKinds)
	sort.Strings(out)
	return out
}

func (l *Library) read(path string) (string, error) {
	data, err := files.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read embedded %s: %w", path, err)
	}
	return string(data), nil
}

func firstTitle(content string) string {
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "# "))
		}
	}
	return ""
}
