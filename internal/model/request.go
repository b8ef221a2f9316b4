package model

// SaveProgressRequest is the autosave payload: the full draft answer
// set plus the learner's cursor. Scores in the payload are ignored.
type SaveProgressRequest struct {
	Answers              []Answer `json:"answers" binding:"dive"`
	CurrentQuestionIndex int      `json:"current_question_index" binding:"min=0"`
}
