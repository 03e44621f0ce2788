package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/voicegen/internal/core"
	"github.com/book-expert/voicegen/internal/credential"
	"github.com/book-expert/voicegen/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAPIKey = "cli-test-key"
	// Never set, so the stored key is the one used.
	testEnvVar = "VOICEGEN_CLI_TEST_UNSET_KEY"
)

func TestParseFlags(t *testing.T) {
	t.Parallel()

	flags, err := parseFlags([]string{"-text", "Hello, world!", "-voice", "Miles", "-pitch", "-5"})
	require.NoError(t, err)
	assert.Equal(t, "Hello, world!", flags.text)
	assert.Equal(t, "Miles", flags.voice)
	assert.Equal(t, -5, flags.pitch)
	assert.True(t, flags.pitchSet)

	flags, err = parseFlags([]string{"-list-voices"})
	require.NoError(t, err)
	assert.True(t, flags.listVoices)
	assert.False(t, flags.pitchSet)

	_, err = parseFlags([]string{"-unknown"})
	require.Error(t, err)
}

func TestValidateFlags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		wantErr error
		name    string
		flags   appFlags
	}{
		{name: "text", flags: appFlags{text: "Hello"}, wantErr: nil},
		{name: "list voices", flags: appFlags{listVoices: true}, wantErr: nil},
		{name: "set key", flags: appFlags{setKey: "k"}, wantErr: nil},
		{name: "missing text", flags: appFlags{text: "   "}, wantErr: errMissingText},
		{name: "conflicting actions", flags: appFlags{setKey: "k", listVoices: true}, wantErr: errConflictingActions},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			err := validateFlags(testCase.flags)
			if testCase.wantErr == nil {
				require.NoError(t, err)

				return
			}

			require.ErrorIs(t, err, testCase.wantErr)
		})
	}
}

// newMockService serves the voice list, the synthesis endpoint and the audio file.
func newMockService(t *testing.T) *httptest.Server {
	t.Helper()

	fixture, err := os.ReadFile(filepath.Join("testdata", "silence.mp3"))
	require.NoError(t, err)

	var server *httptest.Server

	mux := http.NewServeMux()
	mux.HandleFunc("/voices", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, map[string]any{
			"voices": []map[string]any{
				{"voice_id": "en-US-miles", "display_name": "Miles", "available_styles": []string{"Conversational"}},
				{"voice_id": "en-UK-hazel", "display_name": "Hazel"},
			},
		})
	})
	mux.HandleFunc("/text-to-speech", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, map[string]any{"audio_file": server.URL + "/audio/out.mp3"})
	})
	mux.HandleFunc("/audio/out.mp3", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(fixture)
	})

	server = httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return server
}

func writeJSON(t *testing.T, w http.ResponseWriter, body any) {
	t.Helper()

	w.Header().Set("Content-Type", "application/json")

	err := json.NewEncoder(w).Encode(body)
	if err != nil {
		t.Errorf("failed to write mock response: %v", err)
	}
}

// writeConfig writes a config file pointing every path into a temp dir.
func writeConfig(t *testing.T, baseURL string) (string, string) {
	t.Helper()

	dir := t.TempDir()
	keyPath := filepath.Join(dir, credential.FileName)
	configPath := filepath.Join(dir, "voicegen.toml")

	content := fmt.Sprintf(`[murf]
base_url = %q
timeout_seconds = 5

[credential]
path = %q
env_var = %q

[paths]
base_logs_dir = %q
output_dir = %q
`, baseURL, keyPath, testEnvVar, dir, dir)

	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o600))

	return configPath, dir
}

func TestRun_NotConfigured(t *testing.T) {
	t.Parallel()

	configPath, _ := writeConfig(t, newMockService(t).URL)

	err := run(context.Background(), []string{"-config", configPath, "-text", "Hello"}, &bytes.Buffer{})
	require.ErrorIs(t, err, session.ErrNotConfigured)
}

func TestRun_SetKeyListAndGenerate(t *testing.T) {
	t.Parallel()

	configPath, dir := writeConfig(t, newMockService(t).URL)

	var stdout bytes.Buffer

	err := run(context.Background(), []string{"-config", configPath, "-set-key", testAPIKey}, &stdout)
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), credential.FileName)

	stdout.Reset()

	err = run(context.Background(), []string{"-config", configPath, "-list-voices"}, &stdout)
	require.NoError(t, err)
	assert.Equal(t, "Hazel (en-UK): default\nMiles (en-US): Conversational\n", stdout.String())

	stdout.Reset()

	err = run(context.Background(), []string{"-config", configPath, "-text", "Hello"}, &stdout)
	require.NoError(t, err)

	outputPath := filepath.Join(dir, defaultOutputFile)
	assert.Contains(t, stdout.String(), outputPath)
	assert.Contains(t, stdout.String(), "44100 Hz")

	data, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	assert.Len(t, data, 40*417)

	stdout.Reset()

	customPath := filepath.Join(dir, "custom")
	err = run(context.Background(), []string{
		"-config", configPath, "-text", "Hello", "-voice", "Hazel", "-output", customPath,
	}, &stdout)
	require.NoError(t, err)
	assert.FileExists(t, customPath+".mp3")
}

func TestRun_ValidationError(t *testing.T) {
	t.Parallel()

	configPath, _ := writeConfig(t, newMockService(t).URL)

	require.NoError(t, run(context.Background(), []string{"-config", configPath, "-set-key", testAPIKey}, &bytes.Buffer{}))

	err := run(context.Background(), []string{"-config", configPath, "-text", "Hello", "-voice", "Nobody", "-style", "default"}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "voice not found")
}

func TestRun_SetKeyWithoutCatalog(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		writeJSON(t, w, map[string]any{"message": "invalid api key"})
	}))
	t.Cleanup(server.Close)

	configPath, dir := writeConfig(t, server.URL)

	var stdout bytes.Buffer

	err := run(context.Background(), []string{"-config", configPath, "-set-key", testAPIKey}, &stdout)
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "API key saved to")
	assert.Contains(t, stdout.String(), "Voice list unavailable")
	assert.Contains(t, stdout.String(), "invalid api key")

	store := credential.NewStore(filepath.Join(dir, credential.FileName), nil)
	assert.Equal(t, testAPIKey, store.Load())
}

func TestRun_SetKeyRejectsLineBreaks(t *testing.T) {
	t.Parallel()

	configPath, dir := writeConfig(t, newMockService(t).URL)

	err := run(context.Background(), []string{"-config", configPath, "-set-key", "abc\ndef"}, &bytes.Buffer{})
	require.ErrorIs(t, err, core.ErrInvalidCredential)
	assert.NoFileExists(t, filepath.Join(dir, credential.FileName))
}
