package evaluator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Error is returned for any failed evaluator call: transport errors,
// timeouts, non-2xx statuses and malformed payloads all collapse into it.
// It never leaves the grading layer — strategies flatten it to a zero
// score so one flaky evaluator cannot block a grading run.
type Error struct {
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("evaluator %s: unexpected status %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("evaluator %s: %v", e.Endpoint, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Client talks to the external grading backend (text grading, code
// execution, code quality, OCR) over HTTP with a shared API key.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient creates an evaluator client. Every call is bounded by the
// given timeout; a timed-out call surfaces as a regular *Error.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// ─── Text grading ───────────────────────────────────────────────────

// TextGradingRequest asks the text evaluator to score a written answer.
type TextGradingRequest struct {
	Question      string      `json:"question"`
	StudentAnswer string      `json:"student_answer"`
	MaxMark       int         `json:"max_mark"`
	Rubric        interface{} `json:"rubric,omitempty"`
	ContextID     string      `json:"context_id"`
}

// TextGradingResult carries the evaluator's verdict on a written answer.
type TextGradingResult struct {
	Grade     float64 `json:"grade"`
	Feedback  string  `json:"feedback"`
	Reference string  `json:"reference,omitempty"`
}

// GradeText scores a typed (or OCR-extracted) answer.
func (c *Client) GradeText(ctx context.Context, req TextGradingRequest) (*TextGradingResult, error) {
	var res TextGradingResult
	if err := c.post(ctx, "/grading/grade", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ─── Code execution ─────────────────────────────────────────────────

// CodeTestCase is one input/output pair sent to the code runner.
type CodeTestCase struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output"`
}

// CodeRunRequest submits source code against a set of test cases.
type CodeRunRequest struct {
	SourceCode string         `json:"source_code"`
	Language   string         `json:"language"`
	TestCases  []CodeTestCase `json:"test_cases"`
}

// CodeRunResult reports how many test cases the code passed.
type CodeRunResult struct {
	PassedTestCases int `json:"passed_test_cases"`
	TotalTestCases  int `json:"total_test_cases"`
}

// RunCode executes a coding answer against its authored test cases.
func (c *Client) RunCode(ctx context.Context, req CodeRunRequest) (*CodeRunResult, error) {
	var res CodeRunResult
	if err := c.post(ctx, "/code-eval/submit", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ─── Code quality ───────────────────────────────────────────────────

// CodeQualityRequest asks for a qualitative score of code structure and
// approach, independent of test-case results.
type CodeQualityRequest struct {
	Question    string `json:"question"`
	StudentCode string `json:"student_code"`
	MaxMark     int    `json:"max_mark"`
}

// CodeQualityResult carries the quality grader's critique.
type CodeQualityResult struct {
	Grade    float64 `json:"grade"`
	Feedback string  `json:"feedback"`
}

// GradeCodeQuality scores the structure and approach of a coding answer.
func (c *Client) GradeCodeQuality(ctx context.Context, req CodeQualityRequest) (*CodeQualityResult, error) {
	var res CodeQualityResult
	if err := c.post(ctx, "/grading/grade-code", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ─── OCR ────────────────────────────────────────────────────────────

type ocrRequest struct {
	Image string `json:"image"`
}

type ocrResult struct {
	ExtractedText string `json:"extracted_text"`
}

// ExtractText runs handwriting OCR over an image payload.
func (c *Client) ExtractText(ctx context.Context, image string) (string, error) {
	var res ocrResult
	if err := c.post(ctx, "/ocr/extract-text", ocrRequest{Image: image}, &res); err != nil {
		return "", err
	}
	return res.ExtractedText, nil
}

// ─── Transport ──────────────────────────────────────────────────────

func (c *Client) post(ctx context.Context, endpoint string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return &Error{Endpoint: endpoint, Err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return &Error{Endpoint: endpoint, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &Error{Endpoint: endpoint, StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Endpoint: endpoint, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
