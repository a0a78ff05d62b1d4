package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := New("debug", FormatJSON, "fleet-api", &buf)
	log.Debug().Str("k", "v").Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["message"] != "hello" || entry["k"] != "v" || entry["service"] != "fleet-api" {
		t.Errorf("entry = %v", entry)
	}
	if _, ok := entry["time"]; !ok {
		t.Error("timestamp missing")
	}
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New("warn", FormatJSON, "", &buf)
	log.Info().Msg("dropped")
	if buf.Len() != 0 {
		t.Errorf("info should be filtered at warn level, got %q", buf.String())
	}
	log.Warn().Msg("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Errorf("warn should be logged, got %q", buf.String())
	}
}

func TestNew_UnknownLevelDefaultsToInfo(t *testing.T) {
	for _, lvl := range []string{"", "verbose"} {
		log := New(lvl, FormatJSON, "", &bytes.Buffer{})
		if log.GetLevel() != zerolog.InfoLevel {
			t.Errorf("New(%q) level = %v, want info", lvl, log.GetLevel())
		}
	}
}

func TestNew_Console(t *testing.T) {
	var buf bytes.Buffer
	log := New("info", FormatConsole, "", &buf)
	log.Info().Msg("pretty")
	if json.Valid(buf.Bytes()) {
		t.Errorf("console format should not emit JSON: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "pretty") {
		t.Errorf("output = %q", buf.String())
	}
}
