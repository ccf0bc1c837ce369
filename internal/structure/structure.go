// Package structure checks phase documents against the canonical
// section layout and the numbering scheme. Grammar and traceability
// checks live elsewhere; this package is purely shape.
package structure

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/specd/internal/document"
	"github.com/fyrsmithlabs/specd/internal/report"
)

type sectionRule struct {
	name  string
	level int
}

var requiredSections = map[document.Type][]sectionRule{
	document.TypeRequirements: {
		{"Requirements Document", 1},
		{"Introduction", 2},
		{"Requirements", 2},
	},
	document.TypeDesign: {
		{"Design Document", 1},
		{"Overview", 2},
		{"Architecture", 2},
		{"Components and Interfaces", 2},
		{"Data Models", 2},
		{"Error Handling", 2},
		{"Testing Strategy", 2},
	},
	document.TypeTasks: {
		{"Implementation Plan", 1},
	},
}

var (
	userStoryFormatRe = regexp.MustCompile(`(?i)\bas an? .+?, i want .+?, so that .+`)
	storyRoleRe       = regexp.MustCompile(`(?i)\bas an? ([^,]+),`)
	refIDRe           = regexp.MustCompile(`^\d+(?:\.\d+)*$`)
	testWordRe        = regexp.MustCompile(`(?i)\btest`)
)

var vagueTerms = newTermMatcher(
	"user-friendly", "fast", "efficiently", "efficient", "quickly",
	"appropriate", "appropriately", "properly", "robust", "seamless",
	"intuitive", "as needed", "etc",
)

var nonCodingTerms = newTermMatcher(
	"deploy to production", "deployment to production",
	"user acceptance testing", "user testing", "user feedback",
	"user training", "marketing", "metrics gathering",
	"stakeholder meeting",
)

var codingVerbs = newTermMatcher(
	"implement", "create", "write", "add", "build", "update", "refactor",
	"fix", "test", "wire", "extend", "remove", "rename", "migrate",
	"integrate", "define", "parse", "validate", "configure", "set up",
)

// termMatcher matches a fixed term list as whole words, case
// insensitively.
type termMatcher struct {
	terms    []string
	patterns []*regexp.Regexp
}

func newTermMatcher(terms ...string) *termMatcher {
	m := &termMatcher{terms: terms}
	for _, t := range terms {
		m.patterns = append(m.patterns, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(t)+`\b`))
	}
	return m
}

// Find returns the first listed term present in text, or "".
func (m *termMatcher) Find(text string) string {
	for i, p := range m.patterns {
		if p.MatchString(text) {
			return m.terms[i]
		}
	}
	return ""
}

// Check runs every structural rule for the document's type.
func Check(doc *document.Document) []report.Issue {
	c := &checker{doc: doc}
	c.checkSections()
	c.checkHeadingJumps()

	switch doc.Type {
	case document.TypeRequirements:
		c.checkRequirements()
	case document.TypeDesign:
		c.checkDesign()
	case document.TypeTasks:
		c.checkTasks()
	}
	return c.issues
}

type checker struct {
	doc    *document.Document
	issues []report.Issue
}

func (c *checker) add(sev report.Severity, line int, format string, args ...any) {
	c.issues = append(c.issues, report.Issue{
		Severity: sev,
		Message:  fmt.Sprintf(format, args...),
		Line:     line,
	})
}

func (c *checker) checkSections() {
	for _, rule := range requiredSections[c.doc.Type] {
		s := c.doc.FindSection(rule.name)
		if s == nil {
			c.add(report.SeverityError, 0, "missing required section %q", rule.name)
			continue
		}
		if s.Level != rule.level {
			c.add(report.SeverityWarning, s.Line, "section %q should be a level-%d heading, found level %d", rule.name, rule.level, s.Level)
		}
		if rule.level > 1 && s.IsEmpty() {
			c.add(report.SeverityWarning, s.Line, "section %q is empty", rule.name)
		}
	}
}

func (c *checker) checkHeadingJumps() {
	prev := 0
	c.walk(func(s *document.Section) {
		if prev > 0 && s.Level > prev+1 {
			c.add(report.SeverityWarning, s.Line, "heading level jumps from %d to %d", prev, s.Level)
		}
		prev = s.Level
	})
}

func (c *checker) walk(fn func(*document.Section)) {
	var visit func([]*document.Section)
	visit = func(sections []*document.Section) {
		for _, s := range sections {
			fn(s)
			visit(s.Children)
		}
	}
	visit(c.doc.Sections)
}

func (c *checker) checkRequirements() {
	if len(c.doc.Requirements) == 0 {
		c.add(report.SeverityError, 0, "no requirements found")
		return
	}

	for _, r := range c.doc.Requirements {
		c.checkUserStory(r)
		if len(r.Criteria) == 0 {
			c.add(report.SeverityError, r.Line, "requirement %s has no acceptance criteria", r.ID)
		}
		for _, crit := range r.Criteria {
			if term := vagueTerms.Find(crit.Raw); term != "" {
				c.add(report.SeverityWarning, crit.Line, "criterion %d of requirement %s uses vague wording %q", crit.Number, r.ID, term)
			}
		}
	}

	c.checkNumbering("requirement", requirementItems(c.doc))
}

func (c *checker) checkUserStory(r *document.Requirement) {
	if r.UserStory == "" {
		c.add(report.SeverityError, r.Line, "requirement %s is missing a user story", r.ID)
		return
	}
	if !userStoryFormatRe.MatchString(r.UserStory) {
		c.add(report.SeverityError, r.Line, "requirement %s user story does not follow \"As a [role], I want [feature], so that [benefit]\"", r.ID)
		return
	}
	if m := storyRoleRe.FindStringSubmatch(r.UserStory); m != nil {
		role := strings.TrimSpace(strings.Trim(m[1], "[]"))
		if strings.EqualFold(role, "user") {
			c.add(report.SeverityWarning, r.Line, "requirement %s user story uses the generic role \"user\"; name a concrete role", r.ID)
		}
	}
}

func (c *checker) checkDesign() {
	if arch := c.doc.FindSection("Architecture"); arch != nil {
		if !strings.Contains(arch.FullText(), "```mermaid") {
			c.add(report.SeverityWarning, arch.Line, "Architecture section has no mermaid diagram")
		}
	}
	if components := c.doc.FindSection("Components and Interfaces"); components != nil && len(c.doc.Elements) == 0 {
		c.add(report.SeverityWarning, components.Line, "Components and Interfaces has no component subsections")
	}
}

func (c *checker) checkTasks() {
	if len(c.doc.Tasks) == 0 {
		c.add(report.SeverityError, 0, "no tasks found")
		return
	}

	parents := make(map[string]bool)
	for _, t := range c.doc.Tasks {
		if t.ParentID != "" {
			parents[t.ParentID] = true
		}
	}

	hasTesting := false
	for _, t := range c.doc.Tasks {
		label := taskLabel(t)

		if term := nonCodingTerms.Find(t.Title); term != "" {
			c.add(report.SeverityError, t.Line, "task %s describes a non-coding activity (%q)", label, term)
		}
		if term := vagueTerms.Find(t.Title); term != "" {
			c.add(report.SeverityWarning, t.Line, "task %s title uses vague wording %q", label, term)
		}
		if codingVerbs.Find(t.Title) == "" {
			c.add(report.SeverityWarning, t.Line, "task %s has no actionable coding verb", label)
		}
		if len(strings.Fields(t.Title)) < 3 {
			c.add(report.SeverityWarning, t.Line, "task %s title is too brief", label)
		}

		if t.ID == "" {
			c.add(report.SeverityWarning, t.Line, "task %q has no number", t.Title)
		} else if len(t.Refs) == 0 && !parents[t.ID] {
			// Parent tasks inherit coverage from their subtasks.
			c.add(report.SeverityWarning, t.Line, "task %s does not reference any requirements", t.ID)
		}
		for _, ref := range t.Refs {
			if !refIDRe.MatchString(ref) {
				c.add(report.SeverityError, t.Line, "task %s cites malformed requirement id %q", label, ref)
			}
		}

		if testWordRe.MatchString(t.Title + " " + strings.Join(t.Details, " ")) {
			hasTesting = true
		}
	}
	if !hasTesting {
		c.add(report.SeverityWarning, 0, "plan has no testing tasks")
	}

	c.checkNumbering("task", taskItems(c.doc))
}

type numberedItem struct {
	id   string
	line int
}

func requirementItems(doc *document.Document) []numberedItem {
	items := make([]numberedItem, 0, len(doc.Requirements))
	for _, r := range doc.Requirements {
		items = append(items, numberedItem{id: r.ID, line: r.Line})
	}
	return items
}

func taskItems(doc *document.Document) []numberedItem {
	var items []numberedItem
	for _, t := range doc.Tasks {
		if t.ID != "" {
			items = append(items, numberedItem{id: t.ID, line: t.Line})
		}
	}
	return items
}

// checkNumbering walks ids in document order. A child's local number
// must match its 1-based position among its siblings, and its parent
// must already be defined.
func (c *checker) checkNumbering(kind string, items []numberedItem) {
	counters := make(map[string]int)
	defined := make(map[string]bool)

	for _, item := range items {
		parent := ""
		local := item.id
		if dot := strings.LastIndex(item.id, "."); dot >= 0 {
			parent = item.id[:dot]
			local = item.id[dot+1:]
		}

		if parent != "" && !defined[parent] {
			c.add(report.SeverityError, item.line, "%s %s has no parent %s", kind, item.id, parent)
		}

		counters[parent]++
		expected := counters[parent]
		actual, err := strconv.Atoi(local)
		if err != nil || actual != expected {
			c.add(report.SeverityError, item.line, "%s numbering: expected %s, found %s", kind, joinID(parent, expected), item.id)
			// Resynchronize so one gap does not cascade.
			if err == nil {
				counters[parent] = actual
			}
		}
		defined[item.id] = true
	}
}

func joinID(parent string, n int) string {
	if parent == "" {
		return strconv.Itoa(n)
	}
	return parent + "." + strconv.Itoa(n)
}

func taskLabel(t *document.Task) string {
	if t.ID != "" {
		return t.ID
	}
	return fmt.Sprintf("%q", t.Title)
}
