package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elee1766/servoskull/src/resilience"
)

// fakeProvider serves the three OpenAI endpoints the client uses.
type fakeProvider struct {
	chatStatus int
	lastChat   map[string]any
	lastForm   map[string]string
	lastSpeech map[string]any
}

func (f *fakeProvider) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&f.lastChat))

		w.Header().Set("Content-Type", "application/json")
		if f.chatStatus != 0 {
			w.WriteHeader(f.chatStatus)
			_, _ = io.WriteString(w, `{"error":{"message":"upstream exploded","type":"server_error","code":null}}`)
			return
		}
		_, _ = io.WriteString(w, `{"id":"cmpl-1","object":"chat.completion","model":"gpt-4o",
			"choices":[{"index":0,"message":{"role":"assistant","content":"The skull hears you."},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":12,"completion_tokens":5,"total_tokens":17}}`)
	})
	mux.HandleFunc("/v1/audio/transcriptions", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		f.lastForm = map[string]string{"model": r.FormValue("model")}
		if _, header, err := r.FormFile("file"); assert.NoError(t, err) {
			f.lastForm["filename"] = header.Filename
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"text":"  praise the omnissiah  "}`)
	})
	mux.HandleFunc("/v1/audio/speech", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&f.lastSpeech))
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3fake-mp3"))
	})
	return mux
}

func newTestClient(t *testing.T, f *fakeProvider) *OpenAIClient {
	t.Helper()
	return newTestClientWith(t, f, func(cfg *Config) {})
}

func newTestClientWith(t *testing.T, f *fakeProvider, configure func(*Config)) *OpenAIClient {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)

	cfg := Config{
		APIKey:      "test-key",
		BaseURL:     srv.URL + "/v1",
		MaxTokens:   256,
		Temperature: 0.5,
		VoicePrompt: "speak in a monotone",
	}
	configure(&cfg)
	client, err := NewOpenAIClient(cfg)
	require.NoError(t, err)
	return client
}

func TestNewOpenAIClient_RequiresAPIKey(t *testing.T) {
	_, err := NewOpenAIClient(Config{})
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestProcessMultimodal_TextOnly(t *testing.T) {
	f := &fakeProvider{}
	client := newTestClient(t, f)

	reply, err := client.ProcessMultimodal(t.Context(), MultimodalRequest{
		Transcript:      "hello",
		PreviousContext: "You are a servo skull.",
	})
	require.NoError(t, err)
	assert.Equal(t, "The skull hears you.", reply)

	assert.Equal(t, "gpt-4o", f.lastChat["model"])
	assert.EqualValues(t, 256, f.lastChat["max_tokens"])

	messages := f.lastChat["messages"].([]any)
	require.Len(t, messages, 2)
	system := messages[0].(map[string]any)
	assert.Equal(t, "system", system["role"])
	assert.Equal(t, "You are a servo skull.", system["content"])
	user := messages[1].(map[string]any)
	assert.Equal(t, "user", user["role"])
	assert.Equal(t, "hello", user["content"])
}

func TestProcessMultimodal_SendsTemperature(t *testing.T) {
	tests := []struct {
		name        string
		temperature float32
	}{
		{"configured", 0.5},
		{"zero", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeProvider{}
			client := newTestClientWith(t, f, func(cfg *Config) { cfg.Temperature = tt.temperature })

			_, err := client.ProcessMultimodal(t.Context(), MultimodalRequest{Transcript: "Hello"})
			require.NoError(t, err)

			got, ok := f.lastChat["temperature"]
			require.True(t, ok, "temperature must be present in the request body")
			assert.InDelta(t, tt.temperature, got, 1e-6)
		})
	}
}

func TestProcessMultimodal_WithImage(t *testing.T) {
	f := &fakeProvider{}
	client := newTestClient(t, f)

	_, err := client.ProcessMultimodal(t.Context(), MultimodalRequest{
		Transcript: "what is this?",
		ImageData:  "data:image/png;base64,AAAA",
	})
	require.NoError(t, err)

	messages := f.lastChat["messages"].([]any)
	require.Len(t, messages, 1)
	parts := messages[0].(map[string]any)["content"].([]any)
	require.Len(t, parts, 2)
	assert.Equal(t, "text", parts[0].(map[string]any)["type"])
	assert.Equal(t, "what is this?", parts[0].(map[string]any)["text"])
	image := parts[1].(map[string]any)
	assert.Equal(t, "image_url", image["type"])
	assert.Equal(t, "data:image/png;base64,AAAA", image["image_url"].(map[string]any)["url"])
}

func TestProcessMultimodal_ServerErrorIsRetryable(t *testing.T) {
	f := &fakeProvider{chatStatus: http.StatusServiceUnavailable}
	client := newTestClient(t, f)

	_, err := client.ProcessMultimodal(t.Context(), MultimodalRequest{Transcript: "hi"})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.True(t, IsRetryable(err))
}

func TestProcessMultimodal_RateLimitLoggedAsWarning(t *testing.T) {
	var buf bytes.Buffer
	f := &fakeProvider{chatStatus: http.StatusTooManyRequests}
	client := newTestClientWith(t, f, func(cfg *Config) {
		cfg.Logger = slog.New(slog.NewJSONHandler(&buf, nil))
	})

	_, err := client.ProcessMultimodal(t.Context(), MultimodalRequest{Transcript: "hi"})
	require.Error(t, err)

	assert.Contains(t, buf.String(), `"level":"WARN"`)
	assert.Contains(t, buf.String(), `"rate_limited":true`)
	assert.NotContains(t, buf.String(), `"level":"ERROR"`)
}

func TestTranscribeAudio(t *testing.T) {
	f := &fakeProvider{}
	client := newTestClient(t, f)

	text, err := client.TranscribeAudio(t.Context(), []byte("webm-bytes"), "audio.webm")
	require.NoError(t, err)
	assert.Equal(t, "praise the omnissiah", text)
	assert.Equal(t, "whisper-1", f.lastForm["model"])
	assert.Equal(t, "audio.webm", f.lastForm["filename"])
}

func TestGenerateSpeech(t *testing.T) {
	f := &fakeProvider{}
	client := newTestClient(t, f)

	audio, err := client.GenerateSpeech(t.Context(), "hello there")
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3fake-mp3"), audio)
	assert.Equal(t, "tts-1", f.lastSpeech["model"])
	assert.Equal(t, "alloy", f.lastSpeech["voice"])
	assert.Equal(t, "hello there", f.lastSpeech["input"])
	assert.Equal(t, "speak in a monotone", f.lastSpeech["instructions"])
}

// stubClient fails a fixed number of times before succeeding.
type stubClient struct {
	failures int32
	err      error
	calls    int32
}

func (s *stubClient) next() error {
	if atomic.AddInt32(&s.calls, 1) <= s.failures {
		return s.err
	}
	return nil
}

func (s *stubClient) ProcessMultimodal(ctx context.Context, req MultimodalRequest) (string, error) {
	if err := s.next(); err != nil {
		return "", err
	}
	return "reply to " + req.Transcript, nil
}

func (s *stubClient) TranscribeAudio(ctx context.Context, audio []byte, filename string) (string, error) {
	if err := s.next(); err != nil {
		return "", err
	}
	return "transcript", nil
}

func (s *stubClient) GenerateSpeech(ctx context.Context, text string) ([]byte, error) {
	if err := s.next(); err != nil {
		return nil, err
	}
	return []byte("audio"), nil
}

func fastPolicy() resilience.Config {
	cfg := resilience.DefaultConfig()
	cfg.InitialDelay = time.Millisecond
	cfg.MaxDelay = time.Millisecond
	return cfg
}

func TestResilient_RetriesTransientFailures(t *testing.T) {
	stub := &stubClient{failures: 2, err: &APIError{StatusCode: 503}}
	client := NewResilient(stub, fastPolicy())

	reply, err := client.ProcessMultimodal(t.Context(), MultimodalRequest{Transcript: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "reply to hi", reply)
	assert.Equal(t, int32(3), stub.calls)
	assert.Equal(t, "closed", client.State())
}

func TestResilient_DoesNotRetryClientErrors(t *testing.T) {
	stub := &stubClient{failures: 10, err: &APIError{StatusCode: 401, Code: "invalid_api_key"}}
	client := NewResilient(stub, fastPolicy())

	_, err := client.TranscribeAudio(t.Context(), []byte("x"), "audio.webm")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.IsAuthError())
	assert.Equal(t, int32(1), stub.calls)
}

func TestResilient_OpensBreaker(t *testing.T) {
	stub := &stubClient{failures: 100, err: &APIError{StatusCode: 500}}
	cfg := fastPolicy()
	cfg.MaxRetries = 0
	cfg.FailureThreshold = 2
	cfg.OpenTimeout = time.Minute
	client := NewResilient(stub, cfg)

	for i := 0; i < 2; i++ {
		_, err := client.GenerateSpeech(t.Context(), "x")
		require.Error(t, err)
	}
	assert.Equal(t, "open", client.State())

	_, err := client.GenerateSpeech(t.Context(), "x")
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, int32(2), stub.calls)
}
