package errors

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatForUser returns a user-friendly error message.
// If debug is true, includes additional technical details.
func FormatForUser(err error, debug bool) string {
	if err == nil {
		return ""
	}

	ae, ok := err.(*IndexError)
	if !ok {
		// Standard error - just return message
		return err.Error()
	}

	var sb strings.Builder

	sb.WriteString("Error: ")
	sb.WriteString(ae.Message)
	sb.WriteString("\n")

	for _, s := range ae.Suggestions {
		sb.WriteString("\nSuggestion: ")
		sb.WriteString(s)
		sb.WriteString("\n")
	}

	sb.WriteString(fmt.Sprintf("\n[%s]", ae.Code))
	if debug && ae.Cause != nil {
		sb.WriteString(fmt.Sprintf("\ncause: %s", ae.Cause.Error()))
	}

	return sb.String()
}

// FormatForCLI formats an error for CLI output.
// Uses a concise format suitable for terminal display; stack traces and
// causes are suppressed unless a verbose flag has the caller pass debug=true
// via FormatForUser instead.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	ae, ok := err.(*IndexError)
	if !ok {
		ae = Wrap(ErrCodeInternal, err)
	}

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Error: %s\n", ae.Message))

	for _, s := range ae.Suggestions {
		sb.WriteString(fmt.Sprintf("  Hint: %s\n", s))
	}

	sb.WriteString(fmt.Sprintf("  Code: %s\n", ae.Code))
	if ae.Provider != "" {
		sb.WriteString(fmt.Sprintf("  Provider: %s\n", ae.Provider))
	}

	return sb.String()
}

// jsonError is the JSON representation of an error.
type jsonError struct {
	Code        string            `json:"code"`
	Message     string            `json:"message"`
	Category    string            `json:"category"`
	Severity    string            `json:"severity"`
	Provider    string            `json:"provider,omitempty"`
	Details     map[string]string `json:"details,omitempty"`
	Suggestions []string          `json:"suggestions,omitempty"`
	Cause       string            `json:"cause,omitempty"`
	Retryable   bool              `json:"retryable"`
}

// FormatJSON returns a JSON representation of the error.
// Suitable for machine consumption and structured logging.
func FormatJSON(err error) ([]byte, error) {
	if err == nil {
		return json.Marshal(nil)
	}

	ae, ok := err.(*IndexError)
	if !ok {
		ae = Wrap(ErrCodeInternal, err)
	}

	je := jsonError{
		Code:        ae.Code,
		Message:     ae.Message,
		Category:    string(ae.Category),
		Severity:    string(ae.Severity),
		Provider:    ae.Provider,
		Details:     ae.Details,
		Suggestions: ae.Suggestions,
		Retryable:   ae.Retryable,
	}

	if ae.Cause != nil {
		je.Cause = ae.Cause.Error()
	}

	return json.Marshal(je)
}

// FormatForLog formats an error for structured logging.
// Returns key-value pairs suitable for slog attributes.
func FormatForLog(err error) map[string]any {
	if err == nil {
		return nil
	}

	ae, ok := err.(*IndexError)
	if !ok {
		return map[string]any{
			"error": err.Error(),
		}
	}

	result := map[string]any{
		"error_code": ae.Code,
		"message":    ae.Message,
		"category":   string(ae.Category),
		"severity":   string(ae.Severity),
		"retryable":  ae.Retryable,
	}

	if ae.Provider != "" {
		result["provider"] = ae.Provider
	}

	if ae.Cause != nil {
		result["cause"] = ae.Cause.Error()
	}

	if len(ae.Suggestions) > 0 {
		result["suggestions"] = ae.Suggestions
	}

	for k, v := range ae.Details {
		result["detail_"+k] = v
	}

	return result
}
