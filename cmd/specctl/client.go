package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// ErrorResponse matches internal/http/types.go ErrorResponse. Echo reports
// binding and routing failures under a message key instead, so both shapes
// are decoded.
type ErrorResponse struct {
	Error      string           `json:"error"`
	Message    string           `json:"message"`
	Conditions []UnmetCondition `json:"conditions"`
}

// UnmetCondition matches internal/workflow UnmetCondition
type UnmetCondition struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// postJSON sends body to the given API path and decodes the JSON response
// into out when out is non-nil.
func postJSON(path string, body, out any) error {
	reqJSON, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := serverURL + path
	httpReq, err := http.NewRequest("POST", url, bytes.NewReader(reqJSON))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := &http.Client{
		Timeout: 30 * time.Second,
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return decodeError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// getJSON fetches the given API path and decodes the JSON response into out.
func getJSON(path string, out any) error {
	url := serverURL + path

	client := &http.Client{
		Timeout: 30 * time.Second,
	}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// decodeError turns a non-2xx response into an error, surfacing unmet
// workflow conditions when the server reports them.
func decodeError(resp *http.Response) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil {
		msg := errResp.Error
		if msg == "" {
			msg = errResp.Message
		}
		if msg != "" {
			if len(errResp.Conditions) > 0 {
				return fmt.Errorf("server returned status %d: %s\n%s", resp.StatusCode, msg, formatConditions(errResp.Conditions))
			}
			return fmt.Errorf("server returned status %d: %s", resp.StatusCode, msg)
		}
	}
	return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
}

// formatConditions renders unmet conditions one per line for error output.
func formatConditions(conds []UnmetCondition) string {
	lines := make([]string, 0, len(conds))
	for _, cond := range conds {
		lines = append(lines, fmt.Sprintf("  - %s: %s", cond.Code, cond.Message))
	}
	return strings.Join(lines, "\n")
}

// outputJSON writes v to stdout as indented JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
