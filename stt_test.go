package aiola

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newSTTTestClient(t *testing.T, baseURL string, fake *fakeTransport, opts ...ClientOption) *Client {
	t.Helper()
	token := testJWT(expIn(time.Hour))
	all := append([]ClientOption{
		WithAccessToken(token),
		WithBaseURL(baseURL),
		WithTransport(func() Transport { return fake }),
	}, opts...)
	client, err := NewClient(all...)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client
}

func TestSTTStream_BuildsConnection(t *testing.T) {
	fake := newFakeTransport()
	client := newSTTTestClient(t, "https://apis.example.com", fake)
	token := client.Options().AccessToken

	conn, err := client.STT().Stream(context.Background(), StreamParams{
		WorkflowID: "flow-123",
		LangCode:   "fr",
	})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	if conn.Connected() {
		t.Fatal("expected a fresh connection to be disconnected")
	}
	if fake.connects != 0 {
		t.Fatal("expected Stream not to connect")
	}

	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if !strings.HasPrefix(fake.url, "https://apis.example.com?") {
		t.Errorf("unexpected URL %q", fake.url)
	}
	if !strings.Contains(fake.url, "flow_id=flow-123&lang_code=fr") {
		t.Errorf("expected flow and language in URL, got %q", fake.url)
	}
	if fake.header.Get("Authorization") != "Bearer "+token {
		t.Errorf("unexpected Authorization header %q", fake.header.Get("Authorization"))
	}
	if !strings.Contains(fake.url, "x-aiola-api-token=") {
		t.Errorf("expected token in query, got %q", fake.url)
	}
}

func TestSTTStream_ClientWorkflow(t *testing.T) {
	fake := newFakeTransport()
	client := newSTTTestClient(t, "https://apis.example.com", fake, WithWorkflowID("client-flow"))

	conn, err := client.STT().Stream(context.Background(), StreamParams{})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	if !strings.Contains(conn.URL(), "flow_id=client-flow") {
		t.Errorf("expected client workflow in URL, got %q", conn.URL())
	}
}

func TestSTTStream_FreshConnections(t *testing.T) {
	var created int
	client, _ := NewClient(
		WithAccessToken(testJWT(nil)),
		WithTransport(func() Transport {
			created++
			return newFakeTransport()
		}),
	)

	c1, _ := client.STT().Stream(context.Background(), StreamParams{})
	c2, _ := client.STT().Stream(context.Background(), StreamParams{})
	if c1 == c2 || created != 2 {
		t.Errorf("expected independent connections with their own transports, got %d transports", created)
	}
}

func TestSTTStream_Errors(t *testing.T) {
	t.Run("validation before token resolution", func(t *testing.T) {
		fake := newFakeTransport()
		client, _ := NewClient(WithAccessToken("malformed"), WithTransport(func() Transport { return fake }))

		_, err := client.STT().Stream(context.Background(), StreamParams{LangCode: "e n"})
		var valErr *ValidationError
		if !errors.As(err, &valErr) {
			t.Errorf("expected ValidationError, got %T (%v)", err, err)
		}
	})

	t.Run("expired token", func(t *testing.T) {
		client, _ := NewClient(WithAccessToken(testJWT(expIn(-time.Hour))), WithTransport(func() Transport { return newFakeTransport() }))

		_, err := client.STT().Stream(context.Background(), StreamParams{})
		var authErr *AuthenticationError
		if !errors.As(err, &authErr) {
			t.Errorf("expected AuthenticationError, got %T (%v)", err, err)
		}
	})
}

func TestTranscribeFile(t *testing.T) {
	var (
		gotAuth     string
		gotLanguage string
		gotKeywords string
		gotFilename string
		gotAudio    string
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/speech-to-text/file" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		gotAuth = r.Header.Get("Authorization")

		if err := r.ParseMultipartForm(1 << 20); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		gotLanguage = r.FormValue("language")
		gotKeywords = r.FormValue("keywords")

		f, header, err := r.FormFile("file")
		if err == nil {
			gotFilename = header.Filename
			b, _ := io.ReadAll(f)
			gotAudio = string(b)
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"transcript": "hello world",
			"raw_transcript": "hello world",
			"segments": [{"start": 0.0, "end": 1.5}],
			"metadata": {"file_duration": 1.5, "language": "en", "sample_rate": 16000, "num_channels": 1, "timestamp_utc": "2026-01-01T00:00:00Z", "model_version": "v1"}
		}`)
	}))
	defer server.Close()

	client := newSTTTestClient(t, server.URL, newFakeTransport())

	result, err := client.STT().TranscribeFile(context.Background(), strings.NewReader("RIFF-audio"), TranscribeParams{
		Filename: "clip.wav",
		Keywords: map[string]string{"hello": "greeting"},
	})
	if err != nil {
		t.Fatalf("TranscribeFile failed: %v", err)
	}

	if gotAuth != "Bearer "+client.Options().AccessToken {
		t.Errorf("unexpected Authorization header %q", gotAuth)
	}
	if gotLanguage != "en" {
		t.Errorf("expected default language en, got %q", gotLanguage)
	}
	var keywords map[string]string
	if err := json.Unmarshal([]byte(gotKeywords), &keywords); err != nil {
		t.Fatalf("keywords field is not JSON: %v", err)
	}
	if len(keywords) != 1 || keywords["hello"] != "greeting" {
		t.Errorf("expected keywords {hello: greeting}, got %v", keywords)
	}
	if gotFilename != "clip.wav" || gotAudio != "RIFF-audio" {
		t.Errorf("unexpected file part %q: %q", gotFilename, gotAudio)
	}

	if result.Transcript != "hello world" {
		t.Errorf("unexpected transcript %q", result.Transcript)
	}
	if len(result.Segments) != 1 || result.Segments[0].End != 1.5 {
		t.Errorf("unexpected segments %+v", result.Segments)
	}
	if result.Metadata.SampleRate != 16000 || result.Metadata.ModelVersion != "v1" {
		t.Errorf("unexpected metadata %+v", result.Metadata)
	}
}

func TestTranscribeFile_DefaultKeywords(t *testing.T) {
	var gotKeywords string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseMultipartForm(1 << 20)
		gotKeywords = r.FormValue("keywords")
		fmt.Fprint(w, `{"transcript": ""}`)
	}))
	defer server.Close()

	client := newSTTTestClient(t, server.URL, newFakeTransport())
	if _, err := client.STT().TranscribeFile(context.Background(), strings.NewReader("x"), TranscribeParams{Language: "he"}); err != nil {
		t.Fatalf("TranscribeFile failed: %v", err)
	}
	if gotKeywords != "{}" {
		t.Errorf("expected {} keywords, got %q", gotKeywords)
	}
}

func TestTranscribeFile_Errors(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		body       string
		checkErr   func(t *testing.T, err error)
	}{
		{
			name:       "unauthorized",
			statusCode: http.StatusUnauthorized,
			body:       `{"detail": "bad token"}`,
			checkErr: func(t *testing.T, err error) {
				var authErr *AuthenticationError
				if !errors.As(err, &authErr) {
					t.Errorf("expected AuthenticationError, got %T", err)
				}
			},
		},
		{
			name:       "server error",
			statusCode: http.StatusBadGateway,
			body:       `{"message": "upstream"}`,
			checkErr: func(t *testing.T, err error) {
				var serverErr *ServerError
				if !errors.As(err, &serverErr) || serverErr.Status != http.StatusBadGateway {
					t.Errorf("expected ServerError 502, got %T (%v)", err, err)
				}
			},
		},
		{
			name:       "invalid json",
			statusCode: http.StatusOK,
			body:       `not json`,
			checkErr: func(t *testing.T, err error) {
				var sdkErr *Error
				if !errors.As(err, &sdkErr) || !strings.Contains(err.Error(), "Invalid response format") {
					t.Errorf("expected invalid response error, got %T (%v)", err, err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.statusCode)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			client := newSTTTestClient(t, server.URL, newFakeTransport())
			_, err := client.STT().TranscribeFile(context.Background(), strings.NewReader("x"), TranscribeParams{})
			tt.checkErr(t, err)
		})
	}
}

func TestTranscribeFile_MissingFile(t *testing.T) {
	client := newSTTTestClient(t, "https://apis.example.com", newFakeTransport())

	_, err := client.STT().TranscribeFile(context.Background(), nil, TranscribeParams{})
	var fileErr *FileError
	if !errors.As(err, &fileErr) {
		t.Fatalf("expected FileError, got %T (%v)", err, err)
	}
	if fileErr.Message != "File parameter is required" {
		t.Errorf("unexpected message %q", fileErr.Message)
	}
}

func TestTranscribeFilePath(t *testing.T) {
	var gotFilename string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, header, err := r.FormFile("file"); err == nil {
			gotFilename = header.Filename
		}
		fmt.Fprint(w, `{"transcript": "ok"}`)
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "meeting.wav")
	if err := os.WriteFile(path, []byte("audio"), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	client := newSTTTestClient(t, server.URL, newFakeTransport())
	result, err := client.STT().TranscribeFilePath(context.Background(), path, TranscribeParams{})
	if err != nil {
		t.Fatalf("TranscribeFilePath failed: %v", err)
	}
	if result.Transcript != "ok" {
		t.Errorf("unexpected transcript %q", result.Transcript)
	}
	if gotFilename != "meeting.wav" {
		t.Errorf("expected file name from path, got %q", gotFilename)
	}

	_, err = client.STT().TranscribeFilePath(context.Background(), filepath.Join(t.TempDir(), "missing.wav"), TranscribeParams{})
	var fileErr *FileError
	if !errors.As(err, &fileErr) {
		t.Errorf("expected FileError for missing file, got %T", err)
	}
}
