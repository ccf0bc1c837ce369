// Package traceability links requirement ids to the design elements
// and tasks that cite them. It reports coverage data only; turning
// gaps into issues is the caller's concern.
package traceability

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/fyrsmithlabs/specd/internal/document"
)

// Citation is one place a downstream document references a requirement.
type Citation struct {
	// ID is the id as written, e.g. "1.2". Resolution maps it onto a
	// requirement.
	ID     string
	Line   int
	Source document.Type
}

// ElementRef names a design element and where it starts.
type ElementRef struct {
	Name string
	Line int
}

// TaskRef names a task and where it starts.
type TaskRef struct {
	ID   string
	Line int
}

// Report is the coverage picture across the supplied documents.
type Report struct {
	// RequirementIDs lists every requirement id in document order.
	RequirementIDs []string

	// Citations maps each cited requirement id to the citations that
	// resolve to it.
	Citations map[string][]Citation

	// OrphanRequirements are requirements no supplied downstream
	// document cites.
	OrphanRequirements []string

	// OrphanElements are design elements citing no requirement.
	OrphanElements []ElementRef

	// UncitedTasks are tasks citing no requirement.
	UncitedTasks []TaskRef

	// UnknownCitations name ids that resolve to no requirement.
	UnknownCitations []Citation
}

// Citation scan rules, applied per line in order. The marker form is
// authoritative; the prose forms catch informal references.
var (
	markerRe = regexp.MustCompile(`(?i)_requirements?:\s*([^_]+)_`)
	phraseRe = regexp.MustCompile(`(?i)\brequirements?\s+((?:\d+(?:\.\d+)*)(?:\s*(?:,|and|&)\s*\d+(?:\.\d+)*)*)`)
	abbrevRe = regexp.MustCompile(`(?i)\breq\.?\s*#?\s*(\d+(?:\.\d+)*)`)
	idRe     = regexp.MustCompile(`\d+(?:\.\d+)*`)
)

// Link builds the coverage report for a requirements document against
// whichever downstream documents are supplied. Nil design and tasks
// documents are skipped.
func Link(reqs, design, tasks *document.Document) *Report {
	r := &Report{Citations: make(map[string][]Citation)}
	if reqs != nil {
		r.RequirementIDs = reqs.RequirementIDs()
	}

	known := make(map[string]bool, len(r.RequirementIDs))
	for _, id := range r.RequirementIDs {
		known[id] = true
	}

	var all []Citation
	if design != nil {
		cites := scan(design)
		all = append(all, cites...)
		for _, el := range design.Elements {
			if len(citationsInSpan(cites, el.Line, el.EndLine)) == 0 {
				r.OrphanElements = append(r.OrphanElements, ElementRef{Name: el.Name, Line: el.Line})
			}
		}
	}
	if tasks != nil {
		cites := scan(tasks)
		all = append(all, cites...)
		for _, t := range tasks.Tasks {
			if t.ID == "" {
				continue
			}
			if len(citationsInSpan(cites, t.Line, t.EndLine)) == 0 {
				r.UncitedTasks = append(r.UncitedTasks, TaskRef{ID: t.ID, Line: t.Line})
			}
		}
	}

	for _, cite := range all {
		target, ok := resolve(cite.ID, known)
		if !ok {
			r.UnknownCitations = append(r.UnknownCitations, cite)
			continue
		}
		r.Citations[target] = append(r.Citations[target], cite)
	}

	if design != nil || tasks != nil {
		for _, id := range r.RequirementIDs {
			if len(r.Citations[id]) == 0 {
				r.OrphanRequirements = append(r.OrphanRequirements, id)
			}
		}
	}
	return r
}

// resolve maps a cited id onto a requirement id. "1.2" resolves to
// requirement "1.2" when defined, otherwise to requirement "1" on the
// reading that the tail names a criterion.
func resolve(cited string, known map[string]bool) (string, bool) {
	if known[cited] {
		return cited, true
	}
	head := cited
	if dot := strings.Index(cited, "."); dot >= 0 {
		head = cited[:dot]
	}
	if known[head] {
		return head, true
	}
	return "", false
}

func scan(doc *document.Document) []Citation {
	var out []Citation
	seen := make(map[string]bool)

	record := func(id string, line int) {
		key := fmt.Sprintf("%s@%d", id, line)
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, Citation{ID: id, Line: line, Source: doc.Type})
	}

	inFence := false
	for i, line := range doc.Lines() {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		n := i + 1
		for _, m := range markerRe.FindAllStringSubmatch(line, -1) {
			for _, id := range idRe.FindAllString(m[1], -1) {
				record(id, n)
			}
		}
		for _, m := range phraseRe.FindAllStringSubmatch(line, -1) {
			for _, id := range idRe.FindAllString(m[1], -1) {
				record(id, n)
			}
		}
		for _, m := range abbrevRe.FindAllStringSubmatch(line, -1) {
			record(m[1], n)
		}
	}
	return out
}

func citationsInSpan(cites []Citation, from, to int) []Citation {
	var out []Citation
	for _, c := range cites {
		if c.Line >= from && c.Line <= to {
			out = append(out, c)
		}
	}
	return out
}
