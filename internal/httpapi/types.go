package httpapi

import "montewalk/internal/tools"

// ToolResponse wraps a tool result.
type ToolResponse struct {
	Tool   string `json:"tool"`
	Result any    `json:"result"`
}

// ListToolsResponse enumerates the tools.
type ListToolsResponse struct {
	Tools []tools.Info `json:"tools"`
}

// ErrorResponse reports a failed call with its taxonomy kind and the
// offending asset or parameter.
type ErrorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind"`
	Subject string `json:"subject,omitempty"`
}
