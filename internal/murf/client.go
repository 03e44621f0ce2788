// Package murf provides an HTTP client for the Murf text-to-speech API.
//
// The client is bound to one API key. Building it performs no network
// I/O, so a bad key is only detected by the first call.
package murf

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/book-expert/voicegen/internal/core"
	"github.com/book-expert/voicegen/internal/synthesis"
)

// DefaultBaseURL is the public Murf API root.
const DefaultBaseURL = "https://api.murf.ai/v1"

// API endpoints and paths.
const (
	apiVoices       = "/voices"
	apiTextToSpeech = "/text-to-speech"
)

// HTTP headers.
const (
	headerAuthorization = "Authorization"
	headerContentType   = "Content-Type"
	headerAccept        = "Accept"
	contentTypeJSON     = "application/json"
	bearerPrefix        = "Bearer "
)

// Error messages.
const (
	errFmtMarshalRequest = "failed to marshal request: %w"
	errFmtCreateRequest  = "failed to create request: %w"
	errFmtReadBody       = "failed to read response body: %w"
	errFmtDecodeBody     = "%w: %s: %w"
	maxErrorBodyBytes    = 4096
	maskedKeyVisibleTail = 4
)

// Client talks to the Murf API with a fixed API key.
type Client struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
}

type voicesResponse struct {
	Voices []core.Voice `json:"voices"`
}

type errorResponse struct {
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

// NewClient returns a client bound to apiKey. An empty key yields
// core.ErrInvalidCredential; an empty baseURL means DefaultBaseURL.
func NewClient(apiKey, baseURL string, timeout time.Duration) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, core.ErrInvalidCredential
	}

	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// MaskKey hides all but the tail of key.
func MaskKey(key string) string {
	if len(key) <= maskedKeyVisibleTail {
		return "..."
	}

	return "..." + key[len(key)-maskedKeyVisibleTail:]
}

// ListVoices fetches every voice the account can use.
func (c *Client) ListVoices(ctx context.Context) ([]core.Voice, error) {
	body, err := c.do(ctx, http.MethodGet, apiVoices, nil)
	if err != nil {
		return nil, err
	}

	var resp voicesResponse

	err = parseJSON(body, &resp)
	if err != nil {
		return nil, fmt.Errorf(errFmtDecodeBody, core.ErrProtocolViolation, apiVoices, err)
	}

	return resp.Voices, nil
}

// GenerateSpeech submits req and returns the decoded response body.
func (c *Client) GenerateSpeech(ctx context.Context, req core.Request) (*core.SpeechResponse, error) {
	payload, err := marshalJSON(req)
	if err != nil {
		return nil, fmt.Errorf(errFmtMarshalRequest, err)
	}

	body, err := c.do(ctx, http.MethodPost, apiTextToSpeech, payload)
	if err != nil {
		return nil, err
	}

	var resp core.SpeechResponse

	err = parseJSON(body, &resp)
	if err != nil {
		return nil, fmt.Errorf(errFmtDecodeBody, core.ErrProtocolViolation, apiTextToSpeech, err)
	}

	return &resp, nil
}

// Synthesize submits req and classifies a 2xx response. Non-2xx and
// transport failures are returned as *core.NetworkError.
func (c *Client) Synthesize(ctx context.Context, req core.Request) (core.Result, error) {
	resp, err := c.GenerateSpeech(ctx, req)
	if err != nil {
		return core.Result{}, err
	}

	return synthesis.Interpret(resp, nil), nil
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reqBody io.Reader = http.NoBody
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf(errFmtCreateRequest, err)
	}

	httpReq.Header.Set(headerAuthorization, bearerPrefix+c.apiKey)
	httpReq.Header.Set(headerAccept, contentTypeJSON)

	if payload != nil {
		httpReq.Header.Set(headerContentType, contentTypeJSON)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &core.NetworkError{Err: err, Message: err.Error(), Status: 0}
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, parseErrorResponse(resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &core.NetworkError{Err: fmt.Errorf(errFmtReadBody, err), Message: err.Error(), Status: 0}
	}

	return body, nil
}

// parseErrorResponse extracts the service's diagnostic from a non-2xx
// response, falling back to the raw body.
func parseErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

	var errorResp errorResponse

	message := strings.TrimSpace(string(body))
	if parseJSON(body, &errorResp) == nil {
		switch {
		case errorResp.Message != "":
			message = errorResp.Message
		case errorResp.Detail != "":
			message = errorResp.Detail
		}
	}

	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	return &core.NetworkError{Err: nil, Message: message, Status: resp.StatusCode}
}

// Factory returns a constructor that binds new clients to baseURL and
// timeout.
func Factory(baseURL string, timeout time.Duration) func(apiKey string) (core.Synthesizer, error) {
	return func(apiKey string) (core.Synthesizer, error) {
		client, err := NewClient(apiKey, baseURL, timeout)
		if err != nil {
			return nil, err
		}

		return client, nil
	}
}
