package aiola

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
)

// DefaultVoice is used when TTSParams.Voice is empty.
const DefaultVoice = "af_bella"

const (
	synthesizePath  = "/api/tts/synthesize"
	ttsStreamPath   = "/api/tts/stream"
	ttsChunkSize    = 4096
	ttsChannelDepth = 100
)

// TTSService handles text-to-speech operations.
type TTSService struct {
	client *Client
	auth   *AuthService
}

// TTSStream delivers synthesized audio as it arrives.
type TTSStream struct {
	body        io.ReadCloser
	contentType string
	done        chan struct{}
	err         error
	errMu       sync.RWMutex
	audioCh     chan []byte
	closeOnce   sync.Once
}

// Synthesize converts text to speech and returns the complete audio.
//
// Example:
//
//	result, err := client.TTS().Synthesize(ctx, aiola.TTSParams{
//	    Text:  "Hello, world!",
//	    Voice: "af_bella",
//	})
//	os.WriteFile("output.wav", result.RawData, 0644)
func (s *TTSService) Synthesize(ctx context.Context, params TTSParams) (*TTSResult, error) {
	resp, err := s.post(ctx, synthesizePath, "synthesize", params)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ConnectionError{Message: "failed to read synthesized audio", Cause: err}
	}
	return &TTSResult{RawData: data, ContentType: resp.Header.Get("Content-Type")}, nil
}

// Stream converts text to speech and delivers audio chunks as the service
// produces them. The stream must be closed or drained.
//
// Example:
//
//	stream, err := client.TTS().Stream(ctx, aiola.TTSParams{Text: "Hello"})
//	defer stream.Close()
//
//	for chunk := range stream.Audio() {
//	    // Process audio chunk
//	}
//	if err := stream.Err(); err != nil {
//	    return err
//	}
func (s *TTSService) Stream(ctx context.Context, params TTSParams) (*TTSStream, error) {
	resp, err := s.post(ctx, ttsStreamPath, "tts_stream", params)
	if err != nil {
		return nil, err
	}

	stream := &TTSStream{
		body:        resp.Body,
		contentType: resp.Header.Get("Content-Type"),
		done:        make(chan struct{}),
		audioCh:     make(chan []byte, ttsChannelDepth),
	}
	go stream.readChunks()

	return stream, nil
}

// post validates params and sends the TTS request. A non-2xx response is
// mapped to the error taxonomy and its body closed.
func (s *TTSService) post(ctx context.Context, path, endpoint string, params TTSParams) (*http.Response, error) {
	if strings.TrimSpace(params.Text) == "" {
		return nil, &ValidationError{Param: "text", Message: "text is required"}
	}

	token, err := s.auth.token(ctx)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(newTTSRequest(params))
	if err != nil {
		return nil, &Error{Message: "failed to encode TTS request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.client.options.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Message: "failed to build TTS request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	bearer(req, token)

	r := s.client.requester("tts")
	resp, err := r.do(req, endpoint)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer func() { _ = resp.Body.Close() }()
		return nil, handleAPIError(resp)
	}
	return resp, nil
}

func newTTSRequest(params TTSParams) ttsRequest {
	req := ttsRequest{Text: params.Text, Voice: params.Voice}
	if req.Voice == "" {
		req.Voice = DefaultVoice
	}
	if params.Language != "" {
		lang := params.Language
		req.Language = &lang
	}
	return req
}

func (s *TTSStream) readChunks() {
	defer close(s.done)
	defer close(s.audioCh)
	defer func() { _ = s.body.Close() }()

	for {
		buf := make([]byte, ttsChunkSize)
		n, err := s.body.Read(buf)
		if n > 0 {
			s.audioCh <- buf[:n]
		}
		if err == io.EOF {
			return
		}
		if err != nil {
			if !s.closed() {
				s.setError(&StreamingError{Message: "TTS stream interrupted", Cause: err})
			}
			return
		}
	}
}

func (s *TTSStream) closed() bool {
	s.errMu.RLock()
	defer s.errMu.RUnlock()
	return errors.Is(s.err, errStreamClosed)
}

var errStreamClosed = errors.New("stream closed")

func (s *TTSStream) setError(err error) {
	s.errMu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.errMu.Unlock()
}

// Err returns the error that ended the stream, if any.
func (s *TTSStream) Err() error {
	s.errMu.RLock()
	defer s.errMu.RUnlock()
	if errors.Is(s.err, errStreamClosed) {
		return nil
	}
	return s.err
}

// Audio returns a channel that receives audio chunks. It is closed when
// the response ends.
func (s *TTSStream) Audio() <-chan []byte {
	return s.audioCh
}

// ContentType returns the audio content type reported by the service.
func (s *TTSStream) ContentType() string {
	return s.contentType
}

// Collect waits for all audio and returns the complete result.
func (s *TTSStream) Collect(ctx context.Context) (*TTSResult, error) {
	var buf bytes.Buffer

	for {
		select {
		case chunk, ok := <-s.audioCh:
			if !ok {
				if err := s.Err(); err != nil {
					return nil, err
				}
				return &TTSResult{RawData: buf.Bytes(), ContentType: s.contentType}, nil
			}
			buf.Write(chunk)

		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Close stops the stream and releases the response body.
func (s *TTSStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.setError(errStreamClosed)
		err = s.body.Close()
		// Unblock the reader if the consumer stopped draining.
		go func() {
			for range s.audioCh {
			}
		}()
	})
	return err
}

// Done returns a channel that's closed when the stream ends.
func (s *TTSStream) Done() <-chan struct{} {
	return s.done
}
