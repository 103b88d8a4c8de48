package main

import (
	"encoding/json"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/FACorreiaa/loci-chatmap/internal/app/domain/extract"
)

type extractFlags struct {
	mode     string
	jsonOnly bool
}

func newExtractCmd(global *globalFlags) *cobra.Command {
	var flags extractFlags

	cmd := &cobra.Command{
		Use:   "extract <file|->",
		Short: "Extract locations from a finished reply",
		Long:  "Runs a single extraction over a complete reply. Strict mode fails on the first invalid record.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(cmd, args[0], global, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.mode, "mode", "m", "permissive", "Validation mode (strict, permissive)")
	cmd.Flags().BoolVar(&flags.jsonOnly, "json-only", false, "Only read the first JSON object in the input, never list prose")

	return cmd
}

func runExtract(cmd *cobra.Command, path string, global *globalFlags, flags extractFlags) error {
	mode, err := extract.ParseMode(flags.mode)
	if err != nil {
		return err
	}

	text, err := readInput(path, cmd.InOrStdin())
	if err != nil {
		return err
	}

	log, err := buildLogger(global)
	if err != nil {
		return err
	}
	extractor := buildExtractor(global, clockwork.NewRealClock(), log)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")

	if flags.jsonOnly {
		locs, err := extractor.Normalizer().ParseJSONLocations(cmd.Context(), text, mode)
		if err != nil {
			return fmt.Errorf("%s extraction: %w", mode, err)
		}
		return enc.Encode(locs)
	}

	if mode == extract.ModePermissive {
		return enc.Encode(extractor.Extract(cmd.Context(), text))
	}

	locs, err := extractor.ExtractStrict(cmd.Context(), text)
	if err != nil {
		return fmt.Errorf("strict extraction: %w", err)
	}
	return enc.Encode(locs)
}
