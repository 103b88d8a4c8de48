package main

import (
	"fmt"
	"io"
	"os"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/FACorreiaa/loci-chatmap/internal/app/domain/extract"
	"github.com/FACorreiaa/loci-chatmap/internal/app/domain/lookup"
	"github.com/FACorreiaa/loci-chatmap/pkg/logger"
)

func buildLogger(flags *globalFlags) (*zap.Logger, error) {
	if !flags.verbose {
		return zap.NewNop(), nil
	}
	if err := logger.Init(zapcore.DebugLevel); err != nil {
		return nil, err
	}
	return logger.Log, nil
}

func buildExtractor(flags *globalFlags, clock clockwork.Clock, log *zap.Logger) *extract.Extractor {
	return extract.NewExtractor(
		lookup.Default(),
		lookup.NewTemplateImageResolver(""),
		extract.WithRandom(extract.NewRandom(flags.seed)),
		extract.WithClock(clock),
		extract.WithLogger(log),
	)
}

// readInput reads path, or stdin when path is "-".
func readInput(path string, stdin io.Reader) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading transcript: %w", err)
	}
	return string(data), nil
}
