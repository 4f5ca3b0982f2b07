// Package whisper provides whisper.cpp-backed transcribers: an in-process
// Native variant using the CGO bindings, and a Server variant that talks to a
// running whisper-server binary (which exposes a REST API at POST /inference).
//
// Both implement [stt.Transcriber]. The Native variant avoids HTTP overhead
// entirely but requires libwhisper at link time; the Server variant keeps the
// model in a separate process, which is convenient when the assistant runs on
// a machine that already hosts a shared whisper-server.
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/auricle-ai/auricle/pkg/provider/stt"
)

// defaultRequestTimeout bounds a single /inference call. Whisper batch
// inference on CPU can be slow for long utterances, so this is generous.
const defaultRequestTimeout = 60 * time.Second

// Compile-time assertion that Server satisfies stt.Transcriber.
var _ stt.Transcriber = (*Server)(nil)

// Server implements stt.Transcriber against a remote whisper-server instance.
// It encodes each utterance as a WAV file and submits it as a single batch
// inference request. Safe for concurrent use.
type Server struct {
	serverURL  string
	language   string
	model      string
	httpClient *http.Client
}

// ServerOption is a functional option for configuring a Server transcriber.
type ServerOption func(*Server)

// WithServerLanguage sets the BCP-47 language code sent to the server
// (e.g., "en", "de"). Defaults to "en".
func WithServerLanguage(lang string) ServerOption {
	return func(s *Server) { s.language = lang }
}

// WithServerModel sets the model identifier forwarded to the server (e.g.,
// "base.en"). When empty the server uses whichever model it was started with.
func WithServerModel(model string) ServerOption {
	return func(s *Server) { s.model = model }
}

// WithHTTPClient overrides the HTTP client used for inference requests.
func WithHTTPClient(c *http.Client) ServerOption {
	return func(s *Server) { s.httpClient = c }
}

// NewServer creates a Server transcriber for the whisper-server at serverURL
// (e.g., "http://localhost:8080").
func NewServer(serverURL string, opts ...ServerOption) (*Server, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	s := &Server{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Transcribe implements stt.Transcriber. It wraps the samples in a WAV
// container and POSTs them to the /inference endpoint as multipart/form-data.
func (s *Server) Transcribe(ctx context.Context, samples []float32, sampleRate int) (stt.Result, error) {
	if len(samples) == 0 {
		return stt.Result{Language: s.language}, nil
	}

	wav := encodeWAV(float32ToPCM(samples), sampleRate, 1)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: write wav data: %w", err)
	}
	if s.language != "" {
		if err := mw.WriteField("language", s.language); err != nil {
			return stt.Result{}, fmt.Errorf("whisper: write language field: %w", err)
		}
	}
	if s.model != "" {
		if err := mw.WriteField("model", s.model); err != nil {
			return stt.Result{}, fmt.Errorf("whisper: write model field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.serverURL+"/inference", &body)
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return stt.Result{}, fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: read response body: %w", err)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: parse JSON response: %w", err)
	}

	res := stt.Result{
		Text:     strings.TrimSpace(result.Text),
		Language: s.language,
	}
	if res.Text != "" {
		res.Confidence = 1.0
	}
	return res, nil
}
