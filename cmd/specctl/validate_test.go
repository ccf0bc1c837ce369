package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInferDocumentType(t *testing.T) {
	tests := []struct {
		name string
		path string
		want string
	}{
		{
			name: "requirements file",
			path: "specs/payments/requirements.md",
			want: "requirements",
		},
		{
			name: "uppercase name",
			path: "specs/payments/DESIGN.md",
			want: "design",
		},
		{
			name: "bare tasks file",
			path: "tasks.md",
			want: "tasks",
		},
		{
			name: "unrelated name",
			path: "notes.md",
			want: "",
		},
		{
			name: "stdin marker",
			path: "-",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := inferDocumentType(tt.path)
			if got != tt.want {
				t.Errorf("inferDocumentType(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestFormatIssue(t *testing.T) {
	tests := []struct {
		name  string
		issue Issue
		want  string
	}{
		{
			name:  "with line number",
			issue: Issue{Severity: "error", Message: "missing Requirements section", Line: 12},
			want:  "error (line 12): missing Requirements section",
		},
		{
			name:  "without line number",
			issue: Issue{Severity: "warning", Message: "no downstream documents to check"},
			want:  "warning: no downstream documents to check",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatIssue(tt.issue)
			if got != tt.want {
				t.Errorf("formatIssue(%v) = %q, want %q", tt.issue, got, tt.want)
			}
		})
	}
}

// resetValidateFlags restores the validate command flags between tests.
func resetValidateFlags() {
	validateType = ""
	validateStrict = false
	validateReqsFile = ""
	validateDesignFile = ""
	validateTasksFile = ""
	validateJSON = false
}

func TestRunValidate(t *testing.T) {
	t.Run("passes a clean document", func(t *testing.T) {
		defer resetValidateFlags()

		path := filepath.Join(t.TempDir(), "requirements.md")
		require.NoError(t, os.WriteFile(path, []byte("# Requirements Document\n"), 0o644))

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v1/validate", r.URL.Path)

			var req ValidateRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "requirements", req.DocumentType)
			assert.Contains(t, req.Content, "# Requirements Document")

			w.WriteHeader(http.StatusOK)
			_ = json.NewEncoder(w).Encode(ValidateResponse{
				DocumentType: "requirements",
				Issues:       []Issue{},
				Score:        100,
				Passed:       true,
			})
		}))
		defer server.Close()

		oldServerURL := serverURL
		serverURL = server.URL
		defer func() { serverURL = oldServerURL }()

		err := runValidate(nil, []string{path})

		require.NoError(t, err)
	})

	t.Run("fails when the document fails", func(t *testing.T) {
		defer resetValidateFlags()

		path := filepath.Join(t.TempDir(), "tasks.md")
		require.NoError(t, os.WriteFile(path, []byte("# Implementation Plan\n"), 0o644))

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_ = json.NewEncoder(w).Encode(ValidateResponse{
				DocumentType: "tasks",
				Issues: []Issue{
					{Severity: "error", Message: "no tasks found", Line: 1},
					{Severity: "error", Message: "missing checkbox format", Line: 3},
				},
				Score:      80,
				Passed:     false,
				ErrorCount: 2,
			})
		}))
		defer server.Close()

		oldServerURL := serverURL
		serverURL = server.URL
		defer func() { serverURL = oldServerURL }()

		err := runValidate(nil, []string{path})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "validation failed with 2 error(s)")
	})

	t.Run("requires a known document type", func(t *testing.T) {
		defer resetValidateFlags()

		path := filepath.Join(t.TempDir(), "notes.md")
		require.NoError(t, os.WriteFile(path, []byte("just notes\n"), 0o644))

		err := runValidate(nil, []string{path})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "document type is unknown")
	})

	t.Run("sends companion content", func(t *testing.T) {
		defer resetValidateFlags()

		dir := t.TempDir()
		designPath := filepath.Join(dir, "design.md")
		reqsPath := filepath.Join(dir, "requirements.md")
		require.NoError(t, os.WriteFile(designPath, []byte("# Design Document\n"), 0o644))
		require.NoError(t, os.WriteFile(reqsPath, []byte("# Requirements Document\n"), 0o644))
		validateReqsFile = reqsPath

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req ValidateRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "design", req.DocumentType)
			assert.Contains(t, req.RequirementsContent, "# Requirements Document")

			w.WriteHeader(http.StatusOK)
			_ = json.NewEncoder(w).Encode(ValidateResponse{DocumentType: "design", Passed: true, Score: 100})
		}))
		defer server.Close()

		oldServerURL := serverURL
		serverURL = server.URL
		defer func() { serverURL = oldServerURL }()

		err := runValidate(nil, []string{designPath})

		require.NoError(t, err)
	})

	t.Run("rejects a missing file", func(t *testing.T) {
		defer resetValidateFlags()

		err := runValidate(nil, []string{filepath.Join(t.TempDir(), "missing.md")})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read file")
	})
}
