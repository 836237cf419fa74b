package model

import "net/http"

// ForwardRequest carries the parts of a client request replayed on the primary
type ForwardRequest struct {
	Method  string
	Path    string
	Query   string
	Headers http.Header
	Body    []byte
}

// ForwardResponse is what the primary answered
type ForwardResponse struct {
	StatusCode int         `json:"status_code"`
	Headers    http.Header `json:"headers"`
	Body       []byte      `json:"body"`
}
