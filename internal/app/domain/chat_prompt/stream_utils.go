package llmchat

import (
	"context"
	"iter"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// StreamProcessor handles common streaming operations for AI responses
type StreamProcessor struct {
	logger *zap.Logger
}

// NewStreamProcessor creates a new stream processor
func NewStreamProcessor(logger *zap.Logger) *StreamProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamProcessor{logger: logger}
}

// TextPartIterator yields the text parts of an AI response stream as deltas.
// A stream error is yielded once with an empty chunk and ends the iteration.
func (sp *StreamProcessor) TextPartIterator(
	ctx context.Context,
	responses iter.Seq2[*genai.GenerateContentResponse, error],
	contextName string,
) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for resp, err := range responses {
			if err != nil {
				sp.logger.Error("Stream error occurred",
					zap.String("context", contextName),
					zap.Error(err))
				yield("", err)
				return
			}
			if ctx.Err() != nil {
				return
			}
			if resp == nil {
				continue
			}

			for _, cand := range resp.Candidates {
				if cand == nil || cand.Content == nil {
					continue
				}
				for _, part := range cand.Content.Parts {
					if part == nil || part.Text == "" || part.Thought {
						continue
					}
					if !yield(part.Text, nil) {
						return
					}
				}
			}
		}
	}
}

// StreamWithCallback processes each chunk with a callback function.
// It stops at the first stream or callback error.
func (sp *StreamProcessor) StreamWithCallback(
	ctx context.Context,
	chunks iter.Seq2[string, error],
	callback func(chunk string) error,
) error {
	for chunk, err := range chunks {
		if err != nil {
			return err
		}
		if err := callback(chunk); err != nil {
			sp.logger.Debug("Callback stopped stream processing", zap.Error(err))
			return err
		}
	}
	return ctx.Err()
}
