package api

import "github.com/cortexhq/cortex/pkg/learning"

// HealthCheck is one component's health in the health response.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is the GET /health body.
type HealthResponse struct {
	Status  string                 `json:"status"`
	Version string                 `json:"version"`
	Checks  map[string]HealthCheck `json:"checks"`
}

// FeedbackResponse is the POST /api/v1/feedback body.
type FeedbackResponse struct {
	EventID  string                   `json:"event_id"`
	Learning *learning.LearningResult `json:"learning,omitempty"`
}
