// Package session_test tests the voicegen pipeline.
package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voicegen/internal/core"
	"github.com/book-expert/voicegen/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errMockSave = errors.New("mock save error")

type memoryStore struct {
	saveErr error
	key     string
	saves   int
}

func (m *memoryStore) Load() string { return m.key }

func (m *memoryStore) Save(key string) error {
	if m.saveErr != nil {
		return m.saveErr
	}

	m.key = key
	m.saves++

	return nil
}

type fakeSynthesizer struct {
	listErr    error
	synthErr   error
	release    chan struct{}
	started    chan struct{}
	result     core.Result
	apiKey     string
	voices     []core.Voice
	requests   []core.Request
	requestsMu sync.Mutex
}

func (f *fakeSynthesizer) ListVoices(_ context.Context) ([]core.Voice, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}

	return f.voices, nil
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, req core.Request) (core.Result, error) {
	f.requestsMu.Lock()
	f.requests = append(f.requests, req)
	f.requestsMu.Unlock()

	if f.started != nil {
		f.started <- struct{}{}
	}

	if f.release != nil {
		<-f.release
	}

	if f.synthErr != nil {
		return core.Result{}, f.synthErr
	}

	return f.result, nil
}

func testVoices() []core.Voice {
	return []core.Voice{
		{ID: "en-US-miles", DisplayName: "Miles", Styles: []string{"Conversational"}},
		{ID: "en-UK-hazel", DisplayName: "Hazel", Styles: nil},
		{ID: "de-DE-lia", DisplayName: "Lia", Styles: nil},
	}
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	testLogger, err := logger.New(t.TempDir(), "session-test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = testLogger.Close() })

	return testLogger
}

func newTestSession(t *testing.T, store *memoryStore, fake *fakeSynthesizer) *session.Session {
	t.Helper()

	factory := func(apiKey string) (core.Synthesizer, error) {
		if apiKey == "" {
			return nil, core.ErrInvalidCredential
		}

		fake.apiKey = apiKey

		return fake, nil
	}

	return session.New(store, factory, newTestLogger(t))
}

func TestStart_NoCredential(t *testing.T) {
	t.Parallel()

	sess := newTestSession(t, &memoryStore{}, &fakeSynthesizer{voices: testVoices()})

	require.NoError(t, sess.Start(context.Background(), ""))
	assert.False(t, sess.Configured())
	assert.Zero(t, sess.Catalog().Len())

	_, err := sess.Generate(context.Background(), session.Selection{Voice: "Miles", Style: "Conversational", Text: "Hi"})
	require.ErrorIs(t, err, session.ErrNotConfigured)
}

func TestStart_LoadsCatalog(t *testing.T) {
	t.Parallel()

	fake := &fakeSynthesizer{voices: testVoices()}
	sess := newTestSession(t, &memoryStore{key: "stored-key"}, fake)

	require.NoError(t, sess.Start(context.Background(), ""))
	assert.True(t, sess.Configured())
	assert.Equal(t, "stored-key", fake.apiKey)
	assert.Equal(t, []string{"Hazel", "Miles"}, sess.Catalog().Names())
}

func TestStart_OverrideKey(t *testing.T) {
	t.Parallel()

	fake := &fakeSynthesizer{voices: testVoices()}
	sess := newTestSession(t, &memoryStore{key: "stored-key"}, fake)

	require.NoError(t, sess.Start(context.Background(), " env-key "))
	assert.Equal(t, "env-key", fake.apiKey)
}

func TestStart_CatalogFailure(t *testing.T) {
	t.Parallel()

	fake := &fakeSynthesizer{listErr: &core.NetworkError{Status: 401, Message: "invalid api key"}}
	sess := newTestSession(t, &memoryStore{key: "bad-key"}, fake)

	err := sess.Start(context.Background(), "")

	var netErr *core.NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.True(t, sess.Configured())
	assert.Zero(t, sess.Catalog().Len())
}

func TestUpdateCredential(t *testing.T) {
	t.Parallel()

	store := &memoryStore{}
	fake := &fakeSynthesizer{voices: testVoices()}
	sess := newTestSession(t, store, fake)

	require.NoError(t, sess.Start(context.Background(), ""))
	require.False(t, sess.Configured())

	_, err := sess.UpdateCredential(context.Background(), "  ")
	require.ErrorIs(t, err, core.ErrInvalidCredential)
	assert.Zero(t, store.saves)

	update, err := sess.UpdateCredential(context.Background(), " new-key ")
	require.NoError(t, err)
	require.NoError(t, update.RefreshErr)
	assert.Equal(t, 2, update.Voices)
	assert.True(t, sess.Configured())
	assert.Equal(t, "new-key", store.key)
	assert.Equal(t, "new-key", fake.apiKey)
	assert.Equal(t, 2, sess.Catalog().Len())
}

func TestUpdateCredential_RejectsLineBreaks(t *testing.T) {
	t.Parallel()

	store := &memoryStore{key: "old-key"}
	sess := newTestSession(t, store, &fakeSynthesizer{voices: testVoices()})
	require.NoError(t, sess.Start(context.Background(), ""))

	_, err := sess.UpdateCredential(context.Background(), "abc\ndef")
	require.ErrorIs(t, err, core.ErrInvalidCredential)
	assert.Equal(t, "old-key", store.key)
	assert.Zero(t, store.saves)
	assert.True(t, sess.Configured())
}

func TestUpdateCredential_RefreshFailureKeepsKey(t *testing.T) {
	t.Parallel()

	store := &memoryStore{}
	fake := &fakeSynthesizer{listErr: &core.NetworkError{Message: "dial tcp: refused"}}
	sess := newTestSession(t, store, fake)

	update, err := sess.UpdateCredential(context.Background(), "secret-1234")
	require.NoError(t, err)

	var netErr *core.NetworkError
	require.ErrorAs(t, update.RefreshErr, &netErr)
	assert.Zero(t, update.Voices)
	assert.Equal(t, "secret-1234", store.key)
	assert.Equal(t, 1, store.saves)
	assert.True(t, sess.Configured())
}

func TestUpdateCredential_SaveFailureKeepsClient(t *testing.T) {
	t.Parallel()

	store := &memoryStore{saveErr: errMockSave}
	sess := newTestSession(t, store, &fakeSynthesizer{voices: testVoices()})

	update, err := sess.UpdateCredential(context.Background(), "new-key")
	require.ErrorIs(t, err, errMockSave)
	require.NoError(t, update.RefreshErr)
	assert.True(t, sess.Configured())
	assert.Equal(t, 2, sess.Catalog().Len())
}

func TestGenerate_Success(t *testing.T) {
	t.Parallel()

	fake := &fakeSynthesizer{voices: testVoices(), result: core.Succeeded("https://x/y.mp3")}
	sess := newTestSession(t, &memoryStore{key: "k"}, fake)
	require.NoError(t, sess.Start(context.Background(), ""))

	result, err := sess.Generate(context.Background(), session.Selection{
		Voice: "Miles", Style: "Conversational", Text: " Hello ", Pitch: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, "https://x/y.mp3", result.AudioURL)

	require.Len(t, fake.requests, 1)
	assert.Equal(t, "en-US-miles", fake.requests[0].VoiceID)
	assert.Equal(t, "Hello", fake.requests[0].Text)
	assert.Equal(t, 5, fake.requests[0].Pitch)
}

func TestGenerate_ValidationStopsBeforeNetwork(t *testing.T) {
	t.Parallel()

	fake := &fakeSynthesizer{voices: testVoices()}
	sess := newTestSession(t, &memoryStore{key: "k"}, fake)
	require.NoError(t, sess.Start(context.Background(), ""))

	_, err := sess.Generate(context.Background(), session.Selection{Voice: "Lia", Style: "default", Text: "Hi"})
	require.ErrorIs(t, err, &core.ValidationError{Reason: core.ReasonUnknownVoice})
	assert.Empty(t, fake.requests)
}

func TestGenerate_RemoteFailureBecomesResult(t *testing.T) {
	t.Parallel()

	fake := &fakeSynthesizer{voices: testVoices(), synthErr: &core.NetworkError{Status: 500, Message: "boom"}}
	sess := newTestSession(t, &memoryStore{key: "k"}, fake)
	require.NoError(t, sess.Start(context.Background(), ""))

	result, err := sess.Generate(context.Background(), session.Selection{Voice: "Hazel", Style: "default", Text: "Hi"})
	require.NoError(t, err)
	assert.False(t, result.OK())
	assert.Contains(t, result.ErrorDetail, "boom")
}

func TestGenerate_Busy(t *testing.T) {
	t.Parallel()

	fake := &fakeSynthesizer{
		voices:  testVoices(),
		result:  core.Succeeded("https://x/y.mp3"),
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	sess := newTestSession(t, &memoryStore{key: "k"}, fake)
	require.NoError(t, sess.Start(context.Background(), ""))

	sel := session.Selection{Voice: "Miles", Style: "Conversational", Text: "Hi"}
	done := make(chan error, 1)

	go func() {
		_, err := sess.Generate(context.Background(), sel)
		done <- err
	}()

	select {
	case <-fake.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first generation never reached the service")
	}

	_, err := sess.Generate(context.Background(), sel)
	require.ErrorIs(t, err, session.ErrBusy)

	close(fake.release)
	require.NoError(t, <-done)

	fake.started = nil
	_, err = sess.Generate(context.Background(), sel)
	require.NoError(t, err)
}
