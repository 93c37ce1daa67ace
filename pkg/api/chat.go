package api

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatStreamRequest struct {
	SessionID string        `json:"session_id"`
	UserID    string        `json:"user_id,omitempty"`
	Messages  []ChatMessage `json:"messages"`
}

// StreamEvent is the payload of one server-sent event on the chat stream.
type StreamEvent struct {
	Content string `json:"content"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type HistoryQuery struct {
	Limit int `schema:"limit"`
}

type HistoryItem struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

type HistoryResponse struct {
	SessionID string        `json:"session_id"`
	Messages  []HistoryItem `json:"messages"`
}

type FeedbackRequest struct {
	Resolved           bool   `json:"resolved"`
	SatisfactionRating *int32 `json:"satisfaction_rating,omitempty"`
	Feedback           string `json:"feedback,omitempty"`
}
