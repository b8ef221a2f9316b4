package grader

import (
	"context"

	"github.com/gradia-app/gradia-backend/internal/model"
)

// Handwritten extracts text from an uploaded answer image via OCR, then
// delegates to the typed strategy with the extracted text.
type Handwritten struct {
	extractor TextExtractor
	typed     *Typed
}

// NewHandwritten creates the handwritten-answer strategy.
func NewHandwritten(extractor TextExtractor, typed *Typed) *Handwritten {
	return &Handwritten{extractor: extractor, typed: typed}
}

// Grade runs OCR over the image payload and scores the result as a typed
// answer. An OCR failure returns an error for the Set to flatten to 0.
func (h *Handwritten) Grade(ctx context.Context, req Request) (model.GradeResult, error) {
	image := req.Answer.Payload()
	if image == "" {
		return model.GradeResult{Feedback: "No answer was provided."}, nil
	}

	extracted, err := h.extractor.ExtractText(ctx, image)
	if err != nil {
		return model.GradeResult{}, err
	}

	return h.typed.gradeText(ctx, req, extracted)
}
