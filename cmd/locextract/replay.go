package main

import (
	"encoding/json"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/FACorreiaa/loci-chatmap/internal/app/models"
	"github.com/FACorreiaa/loci-chatmap/internal/app/streaming"
)

const defaultChunkSize = 16

type replayFlags struct {
	chunkSize   int
	onlyChanges bool
}

// replayLine is one JSON line of replay output.
type replayLine struct {
	Seq             uint64                  `json:"seq"`
	Chunk           string                  `json:"chunk"`
	Text            string                  `json:"text"`
	Source          models.ExtractionSource `json:"source"`
	Locations       []models.Location       `json:"locations"`
	WeatherLocation string                  `json:"weather_location,omitempty"`
	City            string                  `json:"city,omitempty"`
}

func newReplayCmd(global *globalFlags) *cobra.Command {
	var flags replayFlags

	cmd := &cobra.Command{
		Use:   "replay <file|->",
		Short: "Feed a transcript chunk by chunk and print every update",
		Long: "Splits a saved assistant reply into chunks, feeds them through a stream session " +
			"as the chat service would, and prints one JSON line per extraction pass.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd, args[0], global, flags)
		},
	}

	cmd.Flags().IntVarP(&flags.chunkSize, "chunk-size", "c", defaultChunkSize, "Characters per streamed chunk")
	cmd.Flags().BoolVar(&flags.onlyChanges, "only-changes", false, "Print only passes that change the batch or weather target")

	return cmd
}

func runReplay(cmd *cobra.Command, path string, global *globalFlags, flags replayFlags) error {
	if flags.chunkSize <= 0 {
		return fmt.Errorf("invalid chunk size %d", flags.chunkSize)
	}

	text, err := readInput(path, cmd.InOrStdin())
	if err != nil {
		return err
	}

	log, err := buildLogger(global)
	if err != nil {
		return err
	}
	clock := clockwork.NewRealClock()
	manager := streaming.NewManager(buildExtractor(global, clock, log), clock, log)

	session := manager.Begin(cmd.Context(), "")
	defer manager.End(session)

	enc := json.NewEncoder(cmd.OutOrStdout())
	var prevKey string
	for _, chunk := range chunkText(text, flags.chunkSize) {
		u, err := session.Feed(chunk)
		if err != nil {
			return fmt.Errorf("replaying chunk %q: %w", chunk, err)
		}
		key := updateKey(u.Result)
		if flags.onlyChanges && key == prevKey {
			continue
		}
		prevKey = key
		if err := enc.Encode(replayLine{
			Seq:             u.Seq,
			Chunk:           chunk,
			Text:            u.Result.Text,
			Source:          u.Result.Source,
			Locations:       u.Result.Locations,
			WeatherLocation: u.Result.WeatherLocation,
			City:            u.Result.City,
		}); err != nil {
			return fmt.Errorf("writing update: %w", err)
		}
	}

	if latest, ok := manager.Latest(session.ConversationID); ok {
		return printSummary(cmd.ErrOrStderr(), latest)
	}
	return nil
}

func printSummary(w io.Writer, u streaming.Update) error {
	_, err := fmt.Fprintf(w, "%d passes, final source %s, %d locations\n",
		u.Seq, u.Result.Source, len(u.Result.Locations))
	return err
}

// updateKey identifies what the UI would redraw for res.
func updateKey(res models.ExtractionResult) string {
	key := string(res.Source) + "|" + res.WeatherLocation
	for _, loc := range res.Locations {
		key += fmt.Sprintf("|%s@%.6f,%.6f", loc.Name, loc.Position.Lat, loc.Position.Lng)
	}
	return key
}

// chunkText splits s into pieces of at most size runes.
func chunkText(s string, size int) []string {
	var chunks []string
	for len(s) > 0 {
		n, i := 0, 0
		for i < len(s) && n < size {
			_, w := utf8.DecodeRuneInString(s[i:])
			i += w
			n++
		}
		chunks = append(chunks, s[:i])
		s = s[i:]
	}
	return chunks
}
