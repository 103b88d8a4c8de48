package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/loci-chatmap/internal/app/models"
)

const transcript = "Two classics for you.\n" +
	`{"locations":[{"name":"Eiffel Tower","coordinates":[48.8584,2.2945]},{"name":"Louvre Museum","coordinates":[48.8606,2.3376]}]}`

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func decodeLines(t *testing.T, out string) []replayLine {
	t.Helper()
	var lines []replayLine
	scanner := bufio.NewScanner(strings.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var l replayLine
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &l))
		lines = append(lines, l)
	}
	require.NoError(t, scanner.Err())
	return lines
}

func TestReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reply.txt")
	require.NoError(t, os.WriteFile(path, []byte(transcript), 0o600))

	t.Run("every pass", func(t *testing.T) {
		out, stderr, err := execute(t, "", "replay", path, "--chunk-size", "10")
		require.NoError(t, err)

		lines := decodeLines(t, out)
		require.Len(t, lines, len(chunkText(transcript, 10)))
		for i, l := range lines {
			assert.Equal(t, uint64(i+1), l.Seq)
			assert.NotNil(t, l.Locations)
		}

		last := lines[len(lines)-1]
		assert.Equal(t, models.SourceJSON, last.Source)
		require.Len(t, last.Locations, 2)
		assert.Equal(t, "Paris", last.City)
		assert.Equal(t, "Two classics for you.", last.Text)
		assert.Contains(t, stderr, "2 locations")

		for _, l := range lines[:len(lines)-1] {
			assert.Empty(t, l.Locations, "no batch before the JSON block closes")
		}
	})

	t.Run("only changes from stdin", func(t *testing.T) {
		out, _, err := execute(t, transcript, "replay", "-", "--only-changes", "-c", "7")
		require.NoError(t, err)

		lines := decodeLines(t, out)
		require.Len(t, lines, 2)
		assert.Equal(t, models.SourceNone, lines[0].Source)
		assert.Equal(t, models.SourceJSON, lines[1].Source)
	})

	t.Run("rejects a bad chunk size", func(t *testing.T) {
		_, _, err := execute(t, "", "replay", path, "--chunk-size", "0")
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, _, err := execute(t, "", "replay", filepath.Join(t.TempDir(), "nope.txt"))
		assert.ErrorContains(t, err, "reading transcript")
	})
}

func TestExtract(t *testing.T) {
	t.Run("permissive", func(t *testing.T) {
		out, _, err := execute(t, "Rome:\n1. Colosseum - arena.\n2. Trevi Fountain - coins.", "extract", "-")
		require.NoError(t, err)

		var res models.ExtractionResult
		require.NoError(t, json.Unmarshal([]byte(out), &res))
		assert.Equal(t, models.SourceText, res.Source)
		assert.Len(t, res.Locations, 2)
	})

	t.Run("strict", func(t *testing.T) {
		out, _, err := execute(t, transcript, "extract", "-", "--mode", "strict")
		require.NoError(t, err)

		var locs []models.Location
		require.NoError(t, json.Unmarshal([]byte(out), &locs))
		require.Len(t, locs, 2)
		assert.Equal(t, "Louvre Museum", locs[1].Name)
	})

	t.Run("strict rejects invalid coordinates", func(t *testing.T) {
		_, _, err := execute(t, `{"locations":[{"name":"Bad","coordinates":[200,0]}]}`, "extract", "-", "-m", "strict")
		require.Error(t, err)
		var coords *models.InvalidCoordinatesError
		assert.ErrorAs(t, err, &coords)
	})

	t.Run("json only skips prose braces", func(t *testing.T) {
		input := "Use {curly} braces freely.\n" + transcript
		out, _, err := execute(t, input, "extract", "-", "--json-only", "-m", "strict")
		require.NoError(t, err)

		var locs []models.Location
		require.NoError(t, json.Unmarshal([]byte(out), &locs))
		require.Len(t, locs, 2)
		assert.Equal(t, "Eiffel Tower", locs[0].Name)
	})

	t.Run("json only tolerates malformed JSON when permissive", func(t *testing.T) {
		out, _, err := execute(t, `{"locations":[{"name":'Eiffel'}]}`, "extract", "-", "--json-only")
		require.NoError(t, err)
		assert.JSONEq(t, `[]`, out)

		_, _, err = execute(t, `{"locations":[{"name":'Eiffel'}]}`, "extract", "-", "--json-only", "-m", "strict")
		var malformed *models.MalformedJSONError
		assert.ErrorAs(t, err, &malformed)
	})

	t.Run("unknown mode", func(t *testing.T) {
		_, _, err := execute(t, transcript, "extract", "-", "--mode", "loose")
		assert.Error(t, err)
	})
}

func TestChunkText(t *testing.T) {
	assert.Nil(t, chunkText("", 4))
	assert.Equal(t, []string{"abcd", "ef"}, chunkText("abcdef", 4))

	chunks := chunkText("Café du Monde", 4)
	assert.Equal(t, []string{"Café", " du ", "Mond", "e"}, chunks)
	assert.Equal(t, "Café du Monde", strings.Join(chunks, ""))
}
