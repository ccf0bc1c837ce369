package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fyrsmithlabs/specd/internal/content"
	"github.com/fyrsmithlabs/specd/internal/document"
)

type getTemplateInput struct {
	DocumentType string `json:"document_type" jsonschema:"required,Document type: requirements design or tasks"`
}

type getTemplateOutput struct {
	DocumentType string `json:"document_type" jsonschema:"Document type the template is for"`
	Template     string `json:"template" jsonschema:"Template in markdown; passes validation as written"`
}

type getMethodologyGuideInput struct {
	Topic string `json:"topic" jsonschema:"required,Guide topic; use list_guide_topics for the catalog"`
}

type getMethodologyGuideOutput struct {
	Topic string `json:"topic" jsonschema:"Guide topic"`
	Guide string `json:"guide" jsonschema:"Guide in markdown"`
}

type listGuideTopicsInput struct{}

type listGuideTopicsOutput struct {
	Topics []content.TopicInfo `json:"topics" jsonschema:"Available guide topics in canonical order"`
	Count  int                 `json:"count" jsonschema:"Number of topics"`
}

func (s *Server) registerContentTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_template",
		Description: "Get the document template for a phase; templates pass validation as written",
	}, instrument(s, "get_template", s.handleGetTemplate))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_methodology_guide",
		Description: "Get a methodology guide on the workflow, a phase, or the EARS format",
	}, instrument(s, "get_methodology_guide", s.handleGetMethodologyGuide))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_guide_topics",
		Description: "List the available methodology guide topics",
	}, instrument(s, "list_guide_topics", s.handleListGuideTopics))
}

func (s *Server) handleGetTemplate(_ context.Context, _ *mcp.CallToolRequest, args getTemplateInput) (*mcp.CallToolResult, getTemplateOutput, error) {
	docType, err := document.ParseType(args.DocumentType)
	if err != nil {
		return nil, getTemplateOutput{}, err
	}

	tmpl, err := s.library.Template(docType)
	if err != nil {
		return nil, getTemplateOutput{}, err
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: tmpl}},
	}, getTemplateOutput{DocumentType: string(docType), Template: tmpl}, nil
}

func (s *Server) handleGetMethodologyGuide(_ context.Context, _ *mcp.CallToolRequest, args getMethodologyGuideInput) (*mcp.CallToolResult, getMethodologyGuideOutput, error) {
	guide, err := s.library.Guide(args.Topic)
	if err != nil {
		return nil, getMethodologyGuideOutput{}, err
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: guide}},
	}, getMethodologyGuideOutput{Topic: args.Topic, Guide: guide}, nil
}

func (s *Server) handleListGuideTopics(_ context.Context, _ *mcp.CallToolRequest, _ listGuideTopicsInput) (*mcp.CallToolResult, listGuideTopicsOutput, error) {
	topics := s.library.Topics()
	return textResult("%d guide topic(s)", len(topics)), listGuideTopicsOutput{
		Topics: topics,
		Count:  len(topics),
	}, nil
}
