package evaluator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Evaluator judges an assembled sentence against a prompt description and
// returns a numeric quality score.
type Evaluator interface {
	Score(ctx context.Context, sentence, description string) (int, error)
}

type Config struct {
	// Endpoint of the external scoring service
	URL string `envconfig:"KWENTO_EVALUATOR_URL"`

	// Upper bound on one scoring call; on expiry the fallback score is used
	Timeout time.Duration `envconfig:"KWENTO_EVALUATOR_TIMEOUT" default:"5s"`

	// Neutral score substituted when the evaluator fails or times out
	FallbackScore int `envconfig:"KWENTO_EVALUATOR_FALLBACK_SCORE" default:"6"`

	// Scores at or above PassMark read as pass, below FailMark as fail
	PassMark int `envconfig:"KWENTO_EVALUATOR_PASS_MARK" default:"8"`
	FailMark int `envconfig:"KWENTO_EVALUATOR_FAIL_MARK" default:"4"`
}

type scoreRequest struct {
	Sentence    string `json:"sentence"`
	Description string `json:"description"`
}

type scoreResponse struct {
	Score int `json:"score"`
}

func NewClient(url string, timeout time.Duration) *Client {
	return &Client{url: url, http: &http.Client{Timeout: timeout}}
}

var _ Evaluator = (*Client)(nil)

// Client calls the external scoring service over HTTP.
type Client struct {
	url  string
	http *http.Client
}

func (c *Client) Score(ctx context.Context, sentence, description string) (int, error) {
	body, err := json.Marshal(scoreRequest{Sentence: sentence, Description: description})
	if err != nil {
		return 0, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("evaluator status %d", resp.StatusCode)
	}

	var out scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}

	if out.Score < 0 {
		return 0, fmt.Errorf("malformed score %d", out.Score)
	}

	return out.Score, nil
}

type Verdict string

const (
	VerdictPass  Verdict = "pass"
	VerdictClose Verdict = "close"
	VerdictFail  Verdict = "fail"
)

func NewJudge(eval Evaluator, config Config) *Judge {
	return &Judge{
		eval:     eval,
		timeout:  config.Timeout,
		fallback: config.FallbackScore,
		passMark: config.PassMark,
		failMark: config.FailMark,
	}
}

// Judge wraps an Evaluator with the bounded timeout and the fail-soft
// fallback so that round progression is never blocked by a scoring outage.
type Judge struct {
	eval     Evaluator
	timeout  time.Duration
	fallback int
	passMark int
	failMark int
}

// Score returns the evaluator's score, or the fallback on any failure. The
// second return reports whether the fallback was used.
func (j *Judge) Score(ctx context.Context, sentence, description string) (int, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	score, err := j.eval.Score(ctx, sentence, description)
	if err != nil {
		return j.fallback, true, fmt.Errorf("evaluator score: %w", err)
	}

	return score, false, nil
}

func (j *Judge) Verdict(score int) Verdict {
	switch {
	case score >= j.passMark:
		return VerdictPass
	case score < j.failMark:
		return VerdictFail
	default:
		return VerdictClose
	}
}
