package gateway

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elee1766/servoskull/src/session"
	"github.com/elee1766/servoskull/src/upstream"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 13, 'I', 'H', 'D', 'R'}

// recordingClient captures the last call of each kind.
type recordingClient struct {
	err error

	chatReq       upstream.MultimodalRequest
	chatCalls     int
	audio         []byte
	filename      string
	transcript    string
	speechText    string
	speechPayload []byte
}

func (c *recordingClient) ProcessMultimodal(ctx context.Context, req upstream.MultimodalRequest) (string, error) {
	c.chatCalls++
	c.chatReq = req
	if c.err != nil {
		return "", c.err
	}
	return "reply", nil
}

func (c *recordingClient) TranscribeAudio(ctx context.Context, audio []byte, filename string) (string, error) {
	c.audio = audio
	c.filename = filename
	if c.err != nil {
		return "", c.err
	}
	return c.transcript, nil
}

func (c *recordingClient) GenerateSpeech(ctx context.Context, text string) ([]byte, error) {
	c.speechText = text
	if c.err != nil {
		return nil, c.err
	}
	return c.speechPayload, nil
}

func TestCompleteChat_WithoutImage(t *testing.T) {
	client := &recordingClient{}
	g := New(client, Config{SystemPrompt: "Be brief."})

	reply, err := g.CompleteChat(t.Context(), "hello", "", nil)
	require.NoError(t, err)

	assert.Equal(t, "reply", reply)
	assert.Equal(t, "hello", client.chatReq.Transcript)
	assert.False(t, client.chatReq.HasImage())
	assert.Equal(t, "Be brief.", client.chatReq.PreviousContext)
}

func TestCompleteChat_WithImageAndHistory(t *testing.T) {
	client := &recordingClient{}
	g := New(client, Config{SystemPrompt: "Be brief."})

	history := []session.Turn{
		{Role: session.RoleUser, Content: "look at this", ImageData: "data:image/png;base64,AAAA"},
		{Role: session.RoleAssistant, Content: "a cat"},
	}
	image := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes)

	_, err := g.CompleteChat(t.Context(), "and now?", image, history)
	require.NoError(t, err)

	assert.Equal(t, image, client.chatReq.ImageData)
	assert.Equal(t,
		"Be brief.\n\nConversation history:\nuser: look at this [image attached]\nassistant: a cat",
		client.chatReq.PreviousContext)
}

func TestCompleteChat_RawBase64ImageBecomesDataURL(t *testing.T) {
	client := &recordingClient{}
	g := New(client, Config{})

	_, err := g.CompleteChat(t.Context(), "hi", base64.StdEncoding.EncodeToString(pngBytes), nil)
	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,"+base64.StdEncoding.EncodeToString(pngBytes), client.chatReq.ImageData)
	assert.Equal(t, DefaultSystemPrompt, client.chatReq.PreviousContext)
}

func TestCompleteChat_ValidationErrors(t *testing.T) {
	tests := []struct {
		name       string
		transcript string
		image      string
		field      string
	}{
		{name: "empty transcript", transcript: "", field: "text"},
		{name: "blank transcript", transcript: "  \n", field: "text"},
		{name: "invalid image", transcript: "hi", image: "!!!", field: "image"},
		{name: "not an image", transcript: "hi", image: base64.StdEncoding.EncodeToString([]byte("plain text")), field: "image"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &recordingClient{}
			g := New(client, Config{})

			_, err := g.CompleteChat(t.Context(), tt.transcript, tt.image, nil)

			var vErr *ValidationError
			require.True(t, errors.As(err, &vErr))
			assert.Equal(t, tt.field, vErr.Field)
			assert.Equal(t, 0, client.chatCalls)
		})
	}
}

func TestCompleteChat_WrapsUpstreamFailure(t *testing.T) {
	cause := &upstream.APIError{StatusCode: 503, Message: "unavailable"}
	g := New(&recordingClient{err: cause}, Config{})

	_, err := g.CompleteChat(t.Context(), "hi", "", nil)

	var upErr *UpstreamError
	require.True(t, errors.As(err, &upErr))
	assert.Equal(t, OpCompleteChat, upErr.Op)
	assert.ErrorIs(t, err, cause)
}

func TestTranscribe(t *testing.T) {
	webm := []byte{0x1a, 0x45, 0xdf, 0xa3, 0x9f, 0x42, 0x82, 0x84, 'w', 'e', 'b', 'm'}
	client := &recordingClient{transcript: "  hello skull \n"}
	g := New(client, Config{})

	text, err := g.Transcribe(t.Context(), "data:audio/webm;base64,"+base64.StdEncoding.EncodeToString(webm))
	require.NoError(t, err)

	assert.Equal(t, "hello skull", text)
	assert.Equal(t, webm, client.audio)
	assert.Equal(t, "audio.webm", client.filename)
}

func TestTranscribe_UnknownContainerUsesDefaultName(t *testing.T) {
	client := &recordingClient{transcript: ""}
	g := New(client, Config{})

	text, err := g.Transcribe(t.Context(), base64.StdEncoding.EncodeToString([]byte{0x00, 0x01, 0x02}))
	require.NoError(t, err)
	assert.Empty(t, text)
	assert.Equal(t, "audio.webm", client.filename)
}

func TestTranscribe_NonAudioContainerUsesDefaultName(t *testing.T) {
	client := &recordingClient{}
	g := New(client, Config{})

	_, err := g.Transcribe(t.Context(), base64.StdEncoding.EncodeToString([]byte("plain text, not audio")))
	require.NoError(t, err)
	assert.Equal(t, "audio.webm", client.filename)
}

func TestTranscribe_RejectsImage(t *testing.T) {
	client := &recordingClient{}
	g := New(client, Config{})

	_, err := g.Transcribe(t.Context(), "data:image/png;base64,"+base64.StdEncoding.EncodeToString(pngBytes))

	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "audio", vErr.Field)
	assert.Nil(t, client.audio, "images must not reach the provider")
}

func TestTranscribe_Errors(t *testing.T) {
	g := New(&recordingClient{}, Config{})

	_, err := g.Transcribe(t.Context(), "")
	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "audio", vErr.Field)

	g = New(&recordingClient{err: errors.New("boom")}, Config{})
	_, err = g.Transcribe(t.Context(), base64.StdEncoding.EncodeToString([]byte("abc")))
	var upErr *UpstreamError
	require.True(t, errors.As(err, &upErr))
	assert.Equal(t, OpTranscribe, upErr.Op)
}

func TestSynthesizeSpeech(t *testing.T) {
	client := &recordingClient{speechPayload: []byte("mp3")}
	g := New(client, Config{})

	audio, err := g.SynthesizeSpeech(t.Context(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []byte("mp3"), audio)
	assert.Equal(t, "hello", client.speechText)

	_, err = g.SynthesizeSpeech(t.Context(), " ")
	var vErr *ValidationError
	assert.True(t, errors.As(err, &vErr))
}

func TestFormatHistory(t *testing.T) {
	assert.Equal(t, "", FormatHistory(nil))
	assert.Equal(t, "user: a\nassistant: b", FormatHistory([]session.Turn{
		{Role: session.RoleUser, Content: "a"},
		{Role: session.RoleAssistant, Content: "b"},
	}))
}
