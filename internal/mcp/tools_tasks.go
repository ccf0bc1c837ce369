package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fyrsmithlabs/specd/internal/document"
)

type taskPayload struct {
	ID           string   `json:"id" jsonschema:"Hierarchical task number, e.g. 2.1"`
	Status       string   `json:"status" jsonschema:"pending, in_progress, or done"`
	Title        string   `json:"title" jsonschema:"Task title"`
	Requirements []string `json:"requirements,omitempty" jsonschema:"Requirement IDs the task cites"`
	DependsOn    []string `json:"depends_on,omitempty" jsonschema:"Task IDs this task depends on"`
	ParentID     string   `json:"parent_id,omitempty" jsonschema:"Enclosing task for subtasks"`
	Line         int      `json:"line" jsonschema:"Line the task starts on"`
}

type listTasksInput struct {
	FeatureName string `json:"feature_name,omitempty" jsonschema:"Feature whose tasks document is loaded from the specs directory"`
	Content     string `json:"content,omitempty" jsonschema:"Tasks document content; read from the feature directory when omitted"`
	Status      string `json:"status,omitempty" jsonschema:"Only return tasks with this status: pending in_progress or done"`
}

type listTasksOutput struct {
	Tasks      []taskPayload `json:"tasks" jsonschema:"Tasks in document order"`
	Total      int           `json:"total" jsonschema:"Total number of tasks before filtering"`
	Pending    int           `json:"pending" jsonschema:"Tasks not yet started"`
	InProgress int           `json:"in_progress" jsonschema:"Tasks currently being worked"`
	Done       int           `json:"done" jsonschema:"Completed tasks"`
}

type getTaskDetailsInput struct {
	TaskID      string `json:"task_id" jsonschema:"required,Task number, e.g. 2.1"`
	FeatureName string `json:"feature_name,omitempty" jsonschema:"Feature whose tasks document is loaded from the specs directory"`
	Content     string `json:"content,omitempty" jsonschema:"Tasks document content; read from the feature directory when omitted"`
}

type taskRequirementPayload struct {
	ID        string `json:"id" jsonschema:"Requirement ID"`
	Title     string `json:"title,omitempty" jsonschema:"Requirement title from the requirements document"`
	UserStory string `json:"user_story,omitempty" jsonschema:"User story the requirement carries"`
}

type getTaskDetailsOutput struct {
	Task         taskPayload              `json:"task" jsonschema:"The requested task"`
	Details      []string                 `json:"details,omitempty" jsonschema:"Detail lines under the task"`
	Subtasks     []taskPayload            `json:"subtasks,omitempty" jsonschema:"Direct subtasks in document order"`
	Requirements []taskRequirementPayload `json:"requirements,omitempty" jsonschema:"Cited requirements, resolved against the requirements document when available"`
}

type getNextTaskInput struct {
	FeatureName string `json:"feature_name,omitempty" jsonschema:"Feature whose tasks document is loaded from the specs directory"`
	Content     string `json:"content,omitempty" jsonschema:"Tasks document content; read from the feature directory when omitted"`
}

type getNextTaskOutput struct {
	Found     bool         `json:"found" jsonschema:"True when an unblocked pending task exists"`
	Task      *taskPayload `json:"task,omitempty" jsonschema:"The recommended task"`
	Message   string       `json:"message" jsonschema:"Why this task, or why none"`
	Remaining int          `json:"remaining" jsonschema:"Workable tasks not yet done"`
}

func (s *Server) registerTaskTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_tasks",
		Description: "List tasks from an implementation plan with status counts, optionally filtered by status",
	}, instrument(s, "list_tasks", s.handleListTasks))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_task_details",
		Description: "Get one task with its details, subtasks, and cited requirements",
	}, instrument(s, "get_task_details", s.handleGetTaskDetails))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_next_task",
		Description: "Recommend the next workable task: the first pending task whose dependencies and earlier siblings are done",
	}, instrument(s, "get_next_task", s.handleGetNextTask))
}

func (s *Server) loadTasks(ctx context.Context, feature, inline string) (*document.Document, error) {
	text, err := s.resolveContent(ctx, feature, document.TypeTasks, inline)
	if err != nil {
		return nil, err
	}
	doc, err := document.Parse(document.TypeTasks, text)
	if err != nil {
		return nil, fmt.Errorf("parse tasks: %w", err)
	}
	return doc, nil
}

func (s *Server) handleListTasks(ctx context.Context, _ *mcp.CallToolRequest, args listTasksInput) (*mcp.CallToolResult, listTasksOutput, error) {
	var filter document.TaskStatus
	if args.Status != "" {
		filter = document.TaskStatus(args.Status)
		switch filter {
		case document.TaskPending, document.TaskInProgress, document.TaskDone:
		default:
			return nil, listTasksOutput{}, fmt.Errorf("unknown status %q (pending, in_progress, or done)", args.Status)
		}
	}

	doc, err := s.loadTasks(ctx, args.FeatureName, args.Content)
	if err != nil {
		return nil, listTasksOutput{}, err
	}

	out := listTasksOutput{Tasks: []taskPayload{}, Total: len(doc.Tasks)}
	for _, t := range doc.Tasks {
		switch t.Status {
		case document.TaskPending:
			out.Pending++
		case document.TaskInProgress:
			out.InProgress++
		case document.TaskDone:
			out.Done++
		}
		if filter != "" && t.Status != filter {
			continue
		}
		out.Tasks = append(out.Tasks, newTaskPayload(t))
	}

	return textResult("%d task(s): %d pending, %d in progress, %d done",
		out.Total, out.Pending, out.InProgress, out.Done), out, nil
}

func (s *Server) handleGetTaskDetails(ctx context.Context, _ *mcp.CallToolRequest, args getTaskDetailsInput) (*mcp.CallToolResult, getTaskDetailsOutput, error) {
	if args.TaskID == "" {
		return nil, getTaskDetailsOutput{}, fmt.Errorf("task_id is required")
	}

	doc, err := s.loadTasks(ctx, args.FeatureName, args.Content)
	if err != nil {
		return nil, getTaskDetailsOutput{}, err
	}

	task := doc.TaskByID(args.TaskID)
	if task == nil {
		return nil, getTaskDetailsOutput{}, fmt.Errorf("task %s not found", args.TaskID)
	}

	out := getTaskDetailsOutput{
		Task:    newTaskPayload(task),
		Details: task.Details,
	}
	for _, t := range doc.Tasks {
		if t.ParentID == task.ID {
			out.Subtasks = append(out.Subtasks, newTaskPayload(t))
		}
	}
	out.Requirements = s.resolveRequirements(ctx, args.FeatureName, task.Refs)

	return textResult("task %s (%s): %s", task.ID, task.Status, task.Title), out, nil
}

// resolveRequirements maps criterion-level refs like 1.2 onto their
// requirements and pulls titles from the requirements document when
// one is available.
func (s *Server) resolveRequirements(ctx context.Context, feature string, refs []string) []taskRequirementPayload {
	if len(refs) == 0 {
		return nil
	}

	var reqs *document.Document
	if text := s.loadCompanion(ctx, feature, document.TypeRequirements); text != "" {
		reqs, _ = document.Parse(document.TypeRequirements, text)
	}

	seen := make(map[string]bool, len(refs))
	out := make([]taskRequirementPayload, 0, len(refs))
	for _, ref := range refs {
		rootID := strings.SplitN(ref, ".", 2)[0]
		if seen[rootID] {
			continue
		}
		seen[rootID] = true

		payload := taskRequirementPayload{ID: rootID}
		if reqs != nil {
			if r := reqs.RequirementByID(rootID); r != nil {
				payload.Title = r.Title
				payload.UserStory = r.UserStory
			}
		}
		out = append(out, payload)
	}
	return out
}

func (s *Server) handleGetNextTask(ctx context.Context, _ *mcp.CallToolRequest, args getNextTaskInput) (*mcp.CallToolResult, getNextTaskOutput, error) {
	doc, err := s.loadTasks(ctx, args.FeatureName, args.Content)
	if err != nil {
		return nil, getNextTaskOutput{}, err
	}

	next, remaining, inProgress := nextTask(doc.Tasks)
	out := getNextTaskOutput{Remaining: remaining}

	switch {
	case next != nil:
		payload := newTaskPayload(next)
		out.Found = true
		out.Task = &payload
		out.Message = fmt.Sprintf("task %s is pending with all dependencies and earlier siblings done", next.ID)
	case remaining == 0:
		out.Message = "all tasks are complete"
	case inProgress > 0:
		out.Message = fmt.Sprintf("no pending task is unblocked; %d task(s) in progress", inProgress)
	default:
		out.Message = "no pending task is unblocked; check task dependencies"
	}

	return textResult("%s", out.Message), out, nil
}

// nextTask picks the first workable task in document order. Container
// tasks (those with subtasks) are never recommended themselves; their
// subtasks are. A container counts as done for blocking purposes once
// all of its subtasks are done.
func nextTask(tasks []*document.Task) (next *document.Task, remaining, inProgress int) {
	children := make(map[string][]*document.Task)
	byID := make(map[string]*document.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
		if t.ParentID != "" {
			children[t.ParentID] = append(children[t.ParentID], t)
		}
	}

	var done func(t *document.Task) bool
	done = func(t *document.Task) bool {
		if t.Status == document.TaskDone {
			return true
		}
		kids := children[t.ID]
		if len(kids) == 0 {
			return false
		}
		for _, k := range kids {
			if !done(k) {
				return false
			}
		}
		return true
	}

	workable := func(t *document.Task) bool {
		if t.Status != document.TaskPending {
			return false
		}
		for _, dep := range t.DependsOn {
			// A dependency on an id the document doesn't define is a
			// traceability problem, not a scheduling block.
			if d, ok := byID[dep]; ok && !done(d) {
				return false
			}
		}
		for _, sibling := range tasks {
			if sibling.ParentID != t.ParentID || sibling == t {
				continue
			}
			if sibling.Line < t.Line && !done(sibling) {
				return false
			}
		}
		return true
	}

	for _, t := range tasks {
		if len(children[t.ID]) > 0 {
			continue
		}
		if !done(t) {
			remaining++
		}
		if t.Status == document.TaskInProgress {
			inProgress++
		}
		if next == nil && workable(t) {
			next = t
		}
	}
	return next, remaining, inProgress
}

func newTaskPayload(t *document.Task) taskPayload {
	return taskPayload{
		ID:           t.ID,
		Status:       string(t.Status),
		Title:        t.Title,
		Requirements: t.Refs,
		DependsOn:    t.DependsOn,
		ParentID:     t.ParentID,
		Line:         t.Line,
	}
}
