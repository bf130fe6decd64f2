package classify

import (
	"context"
)

// Assessment is the threat classifier's verdict on a single frame.
type Assessment struct {
	// Probability is the violence likelihood in [0,1].
	Probability float64 `json:"probability"`
	// Label is the dominant predicted class, e.g. "fight", "normal".
	Label string `json:"label,omitempty"`
	// Scores carries per-class probabilities when the service reports them.
	Scores          map[string]float64 `json:"scores,omitempty"`
	InferenceTimeMs float32            `json:"inference_time_ms,omitempty"`
	Device          string             `json:"device,omitempty"`
}

// Classifier scores a JPEG frame for violent activity. Implementations must
// treat any error, including timeout, as "no verdict" — callers interpret a
// failed classification as not suspicious.
type Classifier interface {
	Classify(ctx context.Context, jpegFrame []byte) (*Assessment, error)
}
