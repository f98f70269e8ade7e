package api

// RejectItemRequest is the optional body for POST /api/v1/queue/:id/reject.
type RejectItemRequest struct {
	Comment    string `json:"comment,omitempty"`
	Correction string `json:"correction,omitempty"`
}

// UpdateDraftRequest is the body for PUT /api/v1/drafts/:id.
type UpdateDraftRequest struct {
	Body string `json:"body"`
}

// SubmitFeedbackRequest is the body for POST /api/v1/feedback.
type SubmitFeedbackRequest struct {
	EventID      string `json:"event_id"`
	Approval     bool   `json:"approval"`
	Rating       int    `json:"rating,omitempty"`
	Comment      string `json:"comment,omitempty"`
	Correction   string `json:"correction,omitempty"`
	Modification string `json:"modification,omitempty"`
}
