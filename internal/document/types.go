// Package document parses phase documents (requirements, design, tasks)
// into the structured form the validators and the traceability linker
// consume. Documents are immutable after Parse returns.
package document

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/specd/internal/ears"
)

// Type identifies which phase document a text represents. The type
// determines the canonical required-section set.
type Type string

const (
	TypeRequirements Type = "requirements"
	TypeDesign       Type = "design"
	TypeTasks        Type = "tasks"
)

// Types returns all known document types in phase order.
func Types() []Type {
	return []Type{TypeRequirements, TypeDesign, TypeTasks}
}

// ParseType converts a string into a document Type.
func ParseType(s string) (Type, error) {
	switch Type(strings.ToLower(strings.TrimSpace(s))) {
	case TypeRequirements:
		return TypeRequirements, nil
	case TypeDesign:
		return TypeDesign, nil
	case TypeTasks:
		return TypeTasks, nil
	}
	return "", fmt.Errorf("unknown document type %q (expected requirements, design, or tasks)", s)
}

// Valid reports whether t is a known document type.
func (t Type) Valid() bool {
	_, err := ParseType(string(t))
	return err == nil
}

// Document is one parsed phase document.
type Document struct {
	Type     Type
	Sections []*Section

	// Requirements is populated for requirements documents.
	Requirements []*Requirement

	// Tasks is populated for tasks documents.
	Tasks []*Task

	// Elements is populated for design documents: the component
	// subsections under "Components and Interfaces".
	Elements []*DesignElement

	Raw string
}

// Lines returns the raw text split into lines. Line numbers used
// throughout this package are 1-based indexes into this slice.
func (d *Document) Lines() []string {
	return strings.Split(d.Raw, "\n")
}

// Title returns the first level-1 section, or nil.
func (d *Document) Title() *Section {
	for _, s := range d.Sections {
		if s.Level == 1 {
			return s
		}
	}
	return nil
}

// FindSection searches the section tree for a name, case-insensitively.
func (d *Document) FindSection(name string) *Section {
	return findSection(d.Sections, name)
}

func findSection(sections []*Section, name string) *Section {
	for _, s := range sections {
		if strings.EqualFold(s.Name, name) {
			return s
		}
		if found := findSection(s.Children, name); found != nil {
			return found
		}
	}
	return nil
}

// RequirementIDs returns the ids of all requirements in document order.
func (d *Document) RequirementIDs() []string {
	ids := make([]string, 0, len(d.Requirements))
	for _, r := range d.Requirements {
		ids = append(ids, r.ID)
	}
	return ids
}

// RequirementByID returns the requirement with the given id, or nil.
func (d *Document) RequirementByID(id string) *Requirement {
	for _, r := range d.Requirements {
		if r.ID == id {
			return r
		}
	}
	return nil
}

// TaskByID returns the task with the given id, or nil.
func (d *Document) TaskByID(id string) *Task {
	for _, t := range d.Tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// Section is one heading-delimited region of a document.
type Section struct {
	Name  string
	Level int

	// Line and EndLine delimit the section's span, including nested
	// child sections.
	Line    int
	EndLine int

	// Content is the body text directly under the heading, before any
	// child heading.
	Content string

	Children []*Section

	// RequirementIDs and TaskIDs list the identifiers whose defining
	// lines fall within this section's span.
	RequirementIDs []string
	TaskIDs        []string
}

// IsEmpty reports whether the section has no direct content and no
// children.
func (s *Section) IsEmpty() bool {
	return strings.TrimSpace(s.Content) == "" && len(s.Children) == 0
}

// FullText returns the section's content including all nested child
// sections, for checks that span a whole subtree.
func (s *Section) FullText() string {
	var b strings.Builder
	b.WriteString(s.Content)
	for _, c := range s.Children {
		b.WriteString("\n")
		b.WriteString(c.Name)
		b.WriteString("\n")
		b.WriteString(c.FullText())
	}
	return b.String()
}

// Requirement is one numbered requirement with its user story and
// acceptance criteria.
type Requirement struct {
	// ID is the hierarchical number, e.g. "2" or "2.3". IDs are unique
	// within a document and parent-prefixed.
	ID string

	// Title is the optional text after the number in the heading.
	Title string

	UserStory string

	Criteria []*AcceptanceCriterion

	Line    int
	EndLine int
}

// AcceptanceCriterion is one numbered criterion line, classified
// against the EARS grammar at parse time.
type AcceptanceCriterion struct {
	Number int
	Raw    string
	Line   int

	Classification ears.Classification
}

// DesignElement is one component subsection of a design document.
type DesignElement struct {
	Name string

	Line    int
	EndLine int

	// CitedIDs are requirement ids from explicit reference markers
	// within the element.
	CitedIDs []string
}

// TaskStatus is the checkbox state of a task line.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskDone       TaskStatus = "done"
)

// Task is one checkbox-prefixed implementation task.
type Task struct {
	// ID is the hierarchical number, e.g. "2" or "2.1". Empty when the
	// task line carries no number.
	ID string

	Status TaskStatus
	Title  string

	// Details are the indented bullet lines under the task.
	Details []string

	// Refs are requirement ids cited via reference markers. Tokens are
	// kept verbatim; format validation happens downstream.
	Refs []string

	// DependsOn are task ids cited via dependency markers.
	DependsOn []string

	Line    int
	EndLine int

	// ParentID is the prefix of ID for subtasks ("2" for "2.1"),
	// empty for top-level tasks.
	ParentID string
}
