package document

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/specd/internal/ears"
)

var (
	headingRe = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*$`)

	requirementHeadingRe = regexp.MustCompile(`(?i)^requirement\s+(\d+(?:\.\d+)*)\s*(?::\s*(.*))?$`)
	userStoryRe          = regexp.MustCompile(`(?i)^\*\*user story:?\*\*:?\s*(.*)$`)
	criterionRe          = regexp.MustCompile(`^(\d+)\.\s+(.+)$`)

	taskLineRe = regexp.MustCompile(`^\s*[-*]\s*\[([ xX-])\]\s*(.+)$`)
	taskTextRe = regexp.MustCompile(`^(\d+(?:\.\d+)*)\.?\s+(.+)$`)

	refMarkerRe = regexp.MustCompile(`(?i)_requirements:\s*([^_]+)_`)
	depMarkerRe = regexp.MustCompile(`(?i)_dependencies:\s*([^_]+)_`)
	idTokenRe   = regexp.MustCompile(`\d+(?:\.\d+)*`)
)

type contentLine struct {
	n    int
	text string
}

type parser struct {
	docType Type
	lines   []string
	fenced  []bool

	doc     *Document
	stack   []*Section
	content map[*Section][]contentLine
}

// Parse builds a Document from raw markdown text. It returns a
// ParseError when the text is empty, a '#' line is not a valid heading,
// an id is duplicated, or an id contains a zero component. Everything
// softer is left for the validators.
func Parse(docType Type, text string) (*Document, error) {
	t, err := ParseType(string(docType))
	if err != nil {
		return nil, err
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if strings.TrimSpace(text) == "" {
		return nil, newParseError(KindMissingSection, 0, "document is empty")
	}

	p := &parser{
		docType: t,
		lines:   strings.Split(text, "\n"),
		doc:     &Document{Type: t, Raw: text},
		content: make(map[*Section][]contentLine),
	}
	p.fenced = make([]bool, len(p.lines))

	if err := p.buildSections(); err != nil {
		return nil, err
	}
	if err := p.finalize(); err != nil {
		return nil, err
	}
	return p.doc, nil
}

func (p *parser) buildSections() error {
	inFence := false
	for i, raw := range p.lines {
		n := i + 1
		trimmed := strings.TrimSpace(raw)

		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			p.fenced[i] = true
			p.appendContent(n, raw)
			continue
		}
		if inFence {
			p.fenced[i] = true
			p.appendContent(n, raw)
			continue
		}

		if m := headingRe.FindStringSubmatch(raw); m != nil {
			name := strings.TrimSpace(m[2])
			if name == "" {
				return newParseError(KindMalformedHeader, n, "heading has no title text")
			}
			p.pushSection(len(m[1]), name, n)
			continue
		}
		if strings.HasPrefix(raw, "#") {
			return newParseError(KindMalformedHeader, n, "line starts with '#' but is not a heading: %q", trimmed)
		}

		p.appendContent(n, raw)
	}
	p.popTo(0, len(p.lines))
	return nil
}

func (p *parser) appendContent(n int, text string) {
	if len(p.stack) == 0 {
		return
	}
	top := p.stack[len(p.stack)-1]
	p.content[top] = append(p.content[top], contentLine{n: n, text: text})
}

func (p *parser) pushSection(level int, name string, line int) {
	p.popTo(level, line-1)
	s := &Section{Name: name, Level: level, Line: line}
	if len(p.stack) > 0 {
		parent := p.stack[len(p.stack)-1]
		parent.Children = append(parent.Children, s)
	} else {
		p.doc.Sections = append(p.doc.Sections, s)
	}
	p.stack = append(p.stack, s)
}

// popTo closes every open section at or below the given level, stamping
// its end line. Level 0 closes everything.
func (p *parser) popTo(level int, endLine int) {
	for len(p.stack) > 0 {
		top := p.stack[len(p.stack)-1]
		if level > 0 && top.Level < level {
			return
		}
		top.EndLine = endLine
		p.stack = p.stack[:len(p.stack)-1]
	}
}

func (p *parser) finalize() error {
	p.walk(func(s *Section) {
		lines := p.content[s]
		texts := make([]string, 0, len(lines))
		for _, cl := range lines {
			texts = append(texts, cl.text)
		}
		s.Content = strings.Join(texts, "\n")
	})

	var err error
	switch p.docType {
	case TypeRequirements:
		err = p.extractRequirements()
	case TypeTasks:
		err = p.extractTasks()
	case TypeDesign:
		err = p.extractElements()
	}
	if err != nil {
		return err
	}

	p.indexSections()
	return nil
}

func (p *parser) walk(fn func(*Section)) {
	var visit func([]*Section)
	visit = func(sections []*Section) {
		for _, s := range sections {
			fn(s)
			visit(s.Children)
		}
	}
	visit(p.doc.Sections)
}

func (p *parser) extractRequirements() error {
	seen := make(map[string]int)
	var firstErr error
	p.walk(func(s *Section) {
		if firstErr != nil {
			return
		}
		m := requirementHeadingRe.FindStringSubmatch(s.Name)
		if m == nil {
			return
		}
		id := m[1]
		if hasZeroComponent(id) {
			firstErr = newParseError(KindBadNumbering, s.Line, "requirement id %q contains a zero component", id)
			return
		}
		if prev, ok := seen[id]; ok {
			firstErr = newParseError(KindDuplicateID, s.Line, "requirement %s already defined at line %d", id, prev)
			return
		}
		seen[id] = s.Line

		r := &Requirement{
			ID:      id,
			Title:   strings.TrimSpace(m[2]),
			Line:    s.Line,
			EndLine: s.EndLine,
		}
		r.UserStory = p.extractUserStory(s)
		r.Criteria = p.extractCriteria(s)
		p.doc.Requirements = append(p.doc.Requirements, r)
	})
	return firstErr
}

func (p *parser) extractUserStory(s *Section) string {
	lines := p.content[s]
	for i, cl := range lines {
		m := userStoryRe.FindStringSubmatch(strings.TrimSpace(cl.text))
		if m == nil {
			continue
		}
		story := strings.TrimSpace(m[1])
		// The story may wrap onto following lines.
		for _, next := range lines[i+1:] {
			t := strings.TrimSpace(next.text)
			if t == "" || criterionRe.MatchString(t) || strings.HasPrefix(t, "**") || strings.HasPrefix(t, "_") {
				break
			}
			story = strings.TrimSpace(story + " " + t)
		}
		return story
	}
	return ""
}

// extractCriteria reads numbered criterion lines from the requirement's
// "Acceptance Criteria" child when present, otherwise from the
// requirement body itself. Unnumbered follow-on lines fold into the
// preceding criterion before classification.
func (p *parser) extractCriteria(s *Section) []*AcceptanceCriterion {
	source := p.content[s]
	if child := findSection(s.Children, "Acceptance Criteria"); child != nil {
		source = p.content[child]
	}

	var criteria []*AcceptanceCriterion
	for _, cl := range source {
		t := strings.TrimSpace(cl.text)
		if m := criterionRe.FindStringSubmatch(t); m != nil {
			num, _ := strconv.Atoi(m[1])
			criteria = append(criteria, &AcceptanceCriterion{
				Number: num,
				Raw:    strings.TrimSpace(m[2]),
				Line:   cl.n,
			})
			continue
		}
		if len(criteria) == 0 || t == "" {
			continue
		}
		if strings.HasPrefix(t, "**") || strings.HasPrefix(t, "_") || strings.HasPrefix(t, "#") {
			continue
		}
		last := criteria[len(criteria)-1]
		last.Raw = strings.TrimSpace(last.Raw + " " + t)
	}

	for _, c := range criteria {
		c.Classification = ears.Classify(c.Raw)
	}
	return criteria
}

func (p *parser) extractTasks() error {
	seen := make(map[string]int)
	var current *Task

	for i, raw := range p.lines {
		if p.fenced[i] {
			continue
		}
		n := i + 1

		if m := taskLineRe.FindStringSubmatch(raw); m != nil {
			if current != nil {
				current.EndLine = n - 1
				p.finishTask(current)
			}
			current = &Task{
				Status: checkboxStatus(m[1]),
				Title:  strings.TrimSpace(m[2]),
				Line:   n,
			}
			if tm := taskTextRe.FindStringSubmatch(current.Title); tm != nil {
				id := tm[1]
				if hasZeroComponent(id) {
					return newParseError(KindBadNumbering, n, "task id %q contains a zero component", id)
				}
				if prev, ok := seen[id]; ok {
					return newParseError(KindDuplicateID, n, "task %s already defined at line %d", id, prev)
				}
				seen[id] = n
				current.ID = id
				current.Title = strings.TrimSpace(tm[2])
				if dot := strings.LastIndex(id, "."); dot >= 0 {
					current.ParentID = id[:dot]
				}
			}
			continue
		}

		if current == nil {
			continue
		}
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(raw, "#") || !strings.HasPrefix(raw, " ") && !strings.HasPrefix(raw, "\t") {
			current.EndLine = n - 1
			p.finishTask(current)
			current = nil
			continue
		}
		detail := strings.TrimSpace(strings.TrimLeft(trimmed, "-* "))
		if detail != "" {
			current.Details = append(current.Details, detail)
		}
	}
	if current != nil {
		current.EndLine = len(p.lines)
		p.finishTask(current)
	}
	return nil
}

func (p *parser) finishTask(t *Task) {
	if t.EndLine < t.Line {
		t.EndLine = t.Line
	}
	all := append([]string{t.Title}, t.Details...)
	for _, text := range all {
		if m := refMarkerRe.FindStringSubmatch(text); m != nil {
			t.Refs = append(t.Refs, splitRefTokens(m[1])...)
		}
		if m := depMarkerRe.FindStringSubmatch(text); m != nil {
			t.DependsOn = append(t.DependsOn, splitRefTokens(m[1])...)
		}
	}
	p.doc.Tasks = append(p.doc.Tasks, t)
}

func (p *parser) extractElements() error {
	components := p.doc.FindSection("Components and Interfaces")
	if components == nil {
		return nil
	}
	for _, child := range components.Children {
		el := &DesignElement{
			Name:    child.Name,
			Line:    child.Line,
			EndLine: child.EndLine,
		}
		for i := child.Line - 1; i < child.EndLine && i < len(p.lines); i++ {
			if p.fenced[i] {
				continue
			}
			for _, m := range refMarkerRe.FindAllStringSubmatch(p.lines[i], -1) {
				for _, id := range idTokenRe.FindAllString(m[1], -1) {
					el.CitedIDs = appendUnique(el.CitedIDs, id)
				}
			}
		}
		p.doc.Elements = append(p.doc.Elements, el)
	}
	return nil
}

// indexSections records which requirement and task ids are defined
// inside each section's span.
func (p *parser) indexSections() {
	p.walk(func(s *Section) {
		for _, r := range p.doc.Requirements {
			if r.Line >= s.Line && r.Line <= s.EndLine {
				s.RequirementIDs = append(s.RequirementIDs, r.ID)
			}
		}
		for _, t := range p.doc.Tasks {
			if t.ID != "" && t.Line >= s.Line && t.Line <= s.EndLine {
				s.TaskIDs = append(s.TaskIDs, t.ID)
			}
		}
	})
}

func checkboxStatus(mark string) TaskStatus {
	switch mark {
	case "x", "X":
		return TaskDone
	case "-":
		return TaskInProgress
	}
	return TaskPending
}

func hasZeroComponent(id string) bool {
	for _, part := range strings.Split(id, ".") {
		if part == "0" {
			return true
		}
	}
	return false
}

func splitRefTokens(s string) []string {
	var out []string
	for _, piece := range strings.Split(s, ",") {
		for _, tok := range strings.Fields(piece) {
			tok = strings.Trim(tok, ".;")
			if tok == "" || strings.EqualFold(tok, "and") || tok == "&" {
				continue
			}
			out = append(out, tok)
		}
	}
	return out
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
