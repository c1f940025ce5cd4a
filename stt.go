package aiola

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
)

const (
	transcribePath  = "/api/speech-to-text/file"
	defaultFilename = "audio"
)

// STTService handles speech-to-text operations.
type STTService struct {
	client *Client
	auth   *AuthService
}

// Stream prepares a live transcription session. The returned connection is
// not connected yet; call Connect once handlers are registered.
//
// Example:
//
//	conn, err := client.STT().Stream(ctx, aiola.StreamParams{LangCode: "en"})
//	conn.On(aiola.EventTranscript, func(data json.RawMessage) {
//	    fmt.Println(string(data))
//	})
//	if err := conn.Connect(ctx); err != nil {
//	    return err
//	}
//	defer conn.Disconnect(ctx)
//
//	conn.Send(ctx, chunk)
func (s *STTService) Stream(ctx context.Context, params StreamParams) (*StreamConnection, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	conn, err := s.stream(ctx, params)
	if err != nil {
		if isSDKError(err) {
			return nil, err
		}
		return nil, &Error{Message: "Failed to create streaming connection", Cause: err}
	}
	return conn, nil
}

func (s *STTService) stream(ctx context.Context, params StreamParams) (*StreamConnection, error) {
	token, err := s.auth.token(ctx)
	if err != nil {
		return nil, err
	}

	query, header, err := buildQueryAndHeaders(params, s.client.options.WorkflowID, token)
	if err != nil {
		return nil, err
	}

	logger := s.client.logger.With().
		Str("component", "stt").
		Str("execution_id", query.Get("execution_id")).
		Str("flow_id", query.Get("flow_id")).
		Logger()
	logger.Debug().Str("lang_code", query.Get("lang_code")).Msg("streaming connection prepared")

	return newStreamConnection(
		buildStreamURL(s.client.options.BaseURL, query),
		header,
		s.client.newTransport(),
		logger,
		s.client.metrics,
	), nil
}

// TranscribeFile uploads audio and returns its transcription.
//
// Example:
//
//	f, _ := os.Open("meeting.wav")
//	defer f.Close()
//	result, err := client.STT().TranscribeFile(ctx, f, aiola.TranscribeParams{
//	    Language: "en",
//	    Keywords: map[string]string{"aiola": "aiOla"},
//	})
func (s *STTService) TranscribeFile(ctx context.Context, file io.Reader, params TranscribeParams) (*TranscriptionResponse, error) {
	if file == nil {
		return nil, &FileError{Message: "File parameter is required"}
	}
	if err := validateKeywords(params.Keywords); err != nil {
		return nil, err
	}

	token, err := s.auth.token(ctx)
	if err != nil {
		return nil, err
	}

	body, contentType, err := transcribeForm(file, params)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.client.options.BaseURL+transcribePath, body)
	if err != nil {
		return nil, &Error{Message: "failed to build transcription request", Cause: err}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	bearer(req, token)

	r := s.client.requester("stt")
	resp, err := r.do(req, "transcribe")
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, handleAPIError(resp)
	}

	var result TranscriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &Error{Message: "Invalid response format from transcription service", Cause: err}
	}
	return &result, nil
}

// TranscribeFilePath transcribes the audio file at path.
func (s *STTService) TranscribeFilePath(ctx context.Context, path string, params TranscribeParams) (*TranscriptionResponse, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &FileError{Message: "failed to open " + path, Cause: err}
	}
	defer func() { _ = f.Close() }()

	return s.TranscribeFile(ctx, f, params)
}

// transcribeForm builds the multipart body with file, language and keywords.
func transcribeForm(file io.Reader, params TranscribeParams) (*bytes.Buffer, string, error) {
	filename := params.Filename
	if filename == "" {
		if named, ok := file.(interface{ Name() string }); ok {
			filename = filepath.Base(named.Name())
		}
	}
	if filename == "" {
		filename = defaultFilename
	}

	language := params.Language
	if language == "" {
		language = defaultLangCode
	}

	keywords, err := encodeKeywords(params.Keywords)
	if err != nil {
		return nil, "", err
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", &Error{Message: "failed to build transcription form", Cause: err}
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", &FileError{Message: "failed to read audio file", Cause: err}
	}

	if err := writer.WriteField("language", language); err != nil {
		return nil, "", &Error{Message: "failed to build transcription form", Cause: err}
	}
	if err := writer.WriteField("keywords", keywords); err != nil {
		return nil, "", &Error{Message: "failed to build transcription form", Cause: err}
	}

	if err := writer.Close(); err != nil {
		return nil, "", &Error{Message: "failed to build transcription form", Cause: err}
	}
	return &buf, writer.FormDataContentType(), nil
}
