package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAutosave Action = "autosave"
	ActionSubmit   Action = "submit"
	ActionPing     Action = "ping"
)

// RequestPayload is the union of all client messages; Action selects
// which fields are meaningful.
type RequestPayload struct {
	Action               Action          `json:"action"`
	Answers              []AnswerPayload `json:"answers,omitempty"`
	CurrentQuestionIndex int             `json:"current_question_index,omitempty"`
}

// AnswerPayload mirrors the learner-editable fields of an answer draft.
type AnswerPayload struct {
	QuestionID   string `json:"question_id"`
	QuestionType string `json:"question_type"`
	AnswerText   string `json:"answer_text,omitempty"`
	CodeAnswer   string `json:"code_answer,omitempty"`
	FileURL      string `json:"file_url,omitempty"`
	ImageData    string `json:"image_data,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError     Event = "error"
	EventSaved     Event = "saved"
	EventTime      Event = "time"
	EventSubmitted Event = "submitted"
	EventPong      Event = "pong"
)

type SavedResponse struct {
	Event  Event  `json:"event"`
	Status string `json:"status"`
}

// TimeResponse carries the authoritative remaining time. The server pushes
// it periodically and in reply to pings; clients must never trust their
// local clock over this value.
type TimeResponse struct {
	Event            Event   `json:"event"`
	RemainingSeconds float64 `json:"remaining_seconds"`
}

type SubmittedResponse struct {
	Event        Event  `json:"event"`
	Status       string `json:"status"`
	SubmissionID string `json:"submission_id"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
