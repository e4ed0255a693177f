package jobs

import "encoding/json"

// SubmitRequest is the body of POST /api/v1/jobs.
type SubmitRequest struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// SubmitResponse is returned with 202 Accepted.
type SubmitResponse struct {
	JobID string `json:"job_id"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
}
