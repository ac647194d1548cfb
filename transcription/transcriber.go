package transcription

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// confidenceThreshold is the average log-probability below which a segment
// is treated as "unsure" and discarded.
const confidenceThreshold = -1.0

// fillerPhrases are transcripts the speech model commonly hallucinates on
// silent or near-silent audio. Matching is against the lower-cased trimmed
// segment text.
var fillerPhrases = map[string]struct{}{
	"you":         {},
	"thank you":   {},
	"thanks":      {},
	"subtitle by": {},
	"watching":    {},
	".":           {},
}

// Segment is one timed chunk of speech model output with its confidence
type Segment struct {
	Text       string
	AvgLogprob float64
}

// SpeechClient is the slice of the OpenAI client the transcriber needs
type SpeechClient interface {
	CreateTranscription(ctx context.Context, request openai.AudioRequest) (openai.AudioResponse, error)
}

// Transcriber turns short audio clips into cleaned transcript strings. The
// underlying model client is expensive to set up, so it is created lazily
// exactly once and shared; calls are serialized because the shared instance
// is treated as not reentrant. After a failed load every call returns an
// empty transcript instead of failing the surrounding request.
type Transcriber struct {
	mu         sync.Mutex
	client     SpeechClient
	newClient  func() (SpeechClient, error)
	loadFailed bool
}

// New creates a transcriber backed by the OpenAI Whisper API
func New() *Transcriber {
	return &Transcriber{newClient: defaultClient}
}

// NewWithClient creates a transcriber over a caller-supplied speech client
func NewWithClient(client SpeechClient) *Transcriber {
	return &Transcriber{client: client}
}

func defaultClient() (SpeechClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY is not set")
	}
	return openai.NewClient(apiKey), nil
}

// loadClient performs the single lazy initialization. Caller holds t.mu.
func (t *Transcriber) loadClient() SpeechClient {
	if t.client != nil {
		return t.client
	}
	if t.loadFailed {
		return nil
	}
	client, err := t.newClient()
	if err != nil {
		t.loadFailed = true
		zap.S().Errorw("speech model unavailable, transcripts disabled for this process",
			"error", err,
		)
		return nil
	}
	t.client = client
	return client
}

// Transcribe runs the speech model over the clip at path and returns the
// cleaned transcript, which may be empty. The temp file is deleted whether
// or not transcription succeeds. An empty result means "nothing to
// broadcast", never an error.
func (t *Transcriber) Transcribe(ctx context.Context, path string) string {
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			zap.S().Warnw("failed to remove temp audio clip", "path", path, "error", err)
		}
	}()

	t.mu.Lock()
	defer t.mu.Unlock()

	client := t.loadClient()
	if client == nil {
		return ""
	}

	resp, err := client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: path,
		Language: "en",
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		zap.S().Warnw("transcription request failed", "error", err)
		return ""
	}

	segments := make([]Segment, 0, len(resp.Segments))
	for _, s := range resp.Segments {
		segments = append(segments, Segment{Text: s.Text, AvgLogprob: s.AvgLogprob})
	}
	return FilterSegments(segments)
}

// FilterSegments drops unsure and hallucinated segments and joins the
// survivors with single spaces, preserving segment order.
func FilterSegments(segments []Segment) string {
	var valid []string
	for _, seg := range segments {
		if seg.AvgLogprob < confidenceThreshold {
			continue
		}
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		if _, filler := fillerPhrases[strings.ToLower(text)]; filler {
			continue
		}
		valid = append(valid, text)
	}
	return strings.Join(valid, " ")
}
