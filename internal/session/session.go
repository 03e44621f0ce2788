// Package session runs the voicegen pipeline for any front end.
//
// A Session owns the current API client and voice catalog. Both are
// replaced wholesale, never mutated in place. Generate is the only
// operation that talks to the synthesis endpoint; at most one generation
// runs at a time.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/book-expert/logger"
	"github.com/book-expert/voicegen/internal/catalog"
	"github.com/book-expert/voicegen/internal/core"
	"github.com/book-expert/voicegen/internal/murf"
	"github.com/book-expert/voicegen/internal/synthesis"
)

var (
	// ErrNotConfigured is returned when no API key has been set.
	ErrNotConfigured = errors.New("api key not set or invalid, please check settings")
	// ErrBusy is returned when a generation is already in flight.
	ErrBusy = errors.New("a generation is already in progress")
)

const (
	logFmtNoCredential   = "API key is empty, client not initialized"
	logFmtClientReady    = "Voice client initialized with key %s"
	logFmtClientFailed   = "Error initializing voice client: %v"
	logFmtCatalogLoaded  = "Loaded %d voices (%d offered by the service)"
	logFmtCatalogEmpty   = "No voices loaded into the catalog"
	logFmtCatalogFailed  = "Error fetching voices: %v"
	logFmtCollision      = "Voice display name %q appears more than once, keeping the last entry"
	logFmtGenerating     = "Generating audio with voice %s, style %s, pitch %d"
	logFmtGenerated      = "Audio URL: %s"
	logFmtGenerateFailed = "Audio generation failed: %s"
	logFmtSaveKeyFailed  = "Could not save API key: %v"
	errFmtFetchCatalog   = "failed to fetch voices: %w"
)

// CredentialStore persists the API key.
type CredentialStore interface {
	Load() string
	Save(key string) error
}

// ClientFactory builds a client for an API key. It must not perform
// network I/O and returns core.ErrInvalidCredential for an empty key.
type ClientFactory func(apiKey string) (core.Synthesizer, error)

// Selection is the user's input for one generation.
type Selection struct {
	Voice string `json:"voice"`
	Style string `json:"style"`
	Text  string `json:"text"`
	Pitch int    `json:"pitch"`
}

// Session holds the current client and catalog.
type Session struct {
	store     CredentialStore
	newClient ClientFactory
	log       *logger.Logger
	client    core.Synthesizer
	catalog   *catalog.Catalog
	mu        sync.RWMutex
	inFlight  sync.Mutex
}

// New returns an unconfigured session. Call Start before use.
func New(store CredentialStore, newClient ClientFactory, log *logger.Logger) *Session {
	return &Session{
		store:     store,
		newClient: newClient,
		log:       log,
		client:    nil,
		catalog:   catalog.Build(nil),
	}
}

// Start loads the stored credential, or overrideKey when it is not
// blank, and fetches the catalog. A missing credential is not an error:
// the session simply stays unconfigured. A catalog failure is logged and
// returned; the session remains usable with an empty catalog.
func (s *Session) Start(ctx context.Context, overrideKey string) error {
	key := strings.TrimSpace(overrideKey)
	if key == "" {
		key = s.store.Load()
	}

	err := s.initClient(key)
	if errors.Is(err, core.ErrInvalidCredential) {
		return nil
	}

	if err != nil {
		return err
	}

	return s.Refresh(ctx)
}

// CredentialUpdate reports the catalog refresh that follows a key change.
// A refresh failure does not undo the change.
type CredentialUpdate struct {
	RefreshErr error
	Voices     int
}

// UpdateCredential replaces the API key, persists it and refreshes the
// catalog. The returned error covers only the key itself: a blank key or
// one spanning several lines, a client that cannot be built, or a failed
// save. The new client stays active even if saving fails.
func (s *Session) UpdateCredential(ctx context.Context, key string) (CredentialUpdate, error) {
	key = strings.TrimSpace(key)
	if key == "" || strings.ContainsAny(key, "\r\n") {
		return CredentialUpdate{}, core.ErrInvalidCredential
	}

	err := s.initClient(key)
	if err != nil {
		return CredentialUpdate{}, err
	}

	saveErr := s.store.Save(key)
	if saveErr != nil {
		s.log.Error(logFmtSaveKeyFailed, saveErr)
	}

	refreshErr := s.Refresh(ctx)

	return CredentialUpdate{RefreshErr: refreshErr, Voices: s.Catalog().Len()}, saveErr
}

// Refresh rebuilds the catalog from the service.
func (s *Session) Refresh(ctx context.Context) error {
	client := s.currentClient()
	if client == nil {
		return ErrNotConfigured
	}

	raw, err := client.ListVoices(ctx)
	if err != nil {
		s.log.Error(logFmtCatalogFailed, err)
		s.setCatalog(catalog.Build(nil))

		return fmt.Errorf(errFmtFetchCatalog, err)
	}

	cat := catalog.Build(raw)
	for _, name := range cat.Collisions() {
		s.log.Warn(logFmtCollision, name)
	}

	if cat.Len() == 0 {
		s.log.Warn(logFmtCatalogEmpty)
	} else {
		s.log.Info(logFmtCatalogLoaded, cat.Len(), len(raw))
	}

	s.setCatalog(cat)

	return nil
}

// Configured reports whether a client is available.
func (s *Session) Configured() bool {
	return s.currentClient() != nil
}

// Catalog returns the current catalog.
func (s *Session) Catalog() *catalog.Catalog {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.catalog
}

// Generate validates sel and submits it. Validation problems,
// ErrNotConfigured and ErrBusy are returned as errors; every remote
// failure is reported in the Result.
func (s *Session) Generate(ctx context.Context, sel Selection) (core.Result, error) {
	client := s.currentClient()
	if client == nil {
		return core.Result{}, ErrNotConfigured
	}

	if !s.inFlight.TryLock() {
		return core.Result{}, ErrBusy
	}
	defer s.inFlight.Unlock()

	req, err := synthesis.Build(s.Catalog(), sel.Voice, sel.Style, sel.Text, sel.Pitch)
	if err != nil {
		return core.Result{}, err
	}

	s.log.Info(logFmtGenerating, sel.Voice, sel.Style, sel.Pitch)

	result, err := client.Synthesize(ctx, req)
	if err != nil {
		result = synthesis.Interpret(nil, err)
	}

	if result.OK() {
		s.log.Info(logFmtGenerated, result.AudioURL)
	} else {
		s.log.Error(logFmtGenerateFailed, result.ErrorDetail)
	}

	return result, nil
}

func (s *Session) initClient(key string) error {
	if key == "" {
		s.log.Warn(logFmtNoCredential)
		s.setClient(nil)

		return core.ErrInvalidCredential
	}

	client, err := s.newClient(key)
	if err != nil {
		s.log.Error(logFmtClientFailed, err)
		s.setClient(nil)

		return err
	}

	s.log.Info(logFmtClientReady, murf.MaskKey(key))
	s.setClient(client)

	return nil
}

func (s *Session) currentClient() core.Synthesizer {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.client
}

func (s *Session) setClient(client core.Synthesizer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.client = client
}

func (s *Session) setCatalog(cat *catalog.Catalog) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.catalog = cat
}
