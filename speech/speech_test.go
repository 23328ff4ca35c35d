package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"report-intake-service/audio"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bufferOf(t *testing.T, b []byte) *audio.Buffer {
	t.Helper()
	buf, err := audio.Read(bytes.NewReader(b))
	require.NoError(t, err)
	return buf
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		APIKey:       "speech-key",
		BaseURL:      srv.URL,
		Encoding:     "WEBM_OPUS",
		SampleRateHz: 48000,
		LanguageCode: "en-US",
	})
}

func TestTranscribeSendsFixedConfig(t *testing.T) {
	var got recognizeRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/speech:recognize", r.URL.Path)
		assert.Equal(t, "speech-key", r.URL.Query().Get("key"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte(`{"results":[]}`))
	})

	_, err := client.Transcribe(context.Background(), bufferOf(t, []byte("webm")))
	require.NoError(t, err)

	assert.Equal(t, "WEBM_OPUS", got.Config.Encoding)
	assert.Equal(t, 48000, got.Config.SampleRateHertz)
	assert.Equal(t, "en-US", got.Config.LanguageCode)
	decoded, err := base64.StdEncoding.DecodeString(got.Audio.Content)
	require.NoError(t, err)
	assert.Equal(t, "webm", string(decoded))
}

func TestTranscribeJoinsTopAlternatives(t *testing.T) {
	testCases := []struct {
		name string
		body string
		want string
	}{
		{
			name: "several segments",
			body: `{"results":[
				{"alternatives":[{"transcript":"there is a pothole","confidence":0.9},{"transcript":"there is a pot hole"}]},
				{"alternatives":[{"transcript":"on main street"}]}
			]}`,
			want: "there is a pothole\non main street",
		},
		{
			name: "segment without alternatives is skipped",
			body: `{"results":[{"alternatives":[]},{"alternatives":[{"transcript":"broken light"}]}]}`,
			want: "broken light",
		},
		{name: "no results", body: `{}`, want: ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tc.body))
			})
			got, err := client.Transcribe(context.Background(), bufferOf(t, []byte("a")))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestTranscribeFailures(t *testing.T) {
	t.Run("non 2xx", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":{"message":"API key not valid"}}`))
		})
		_, err := client.Transcribe(context.Background(), bufferOf(t, []byte("a")))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 403")
	})

	t.Run("bad json", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>`))
		})
		_, err := client.Transcribe(context.Background(), bufferOf(t, []byte("a")))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse response")
	})

	t.Run("transport error hides key", func(t *testing.T) {
		client := NewClient(Config{APIKey: "speech-key", BaseURL: "http://127.0.0.1:1"})
		_, err := client.Transcribe(context.Background(), bufferOf(t, []byte("a")))
		require.Error(t, err)
		assert.NotContains(t, err.Error(), "speech-key")
	})

	t.Run("key is query escaped", func(t *testing.T) {
		const key = "sp+key/=&x=1"
		var gotQuery url.Values
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotQuery = r.URL.Query()
			_, _ = w.Write([]byte(`{"results":[]}`))
		}))
		defer srv.Close()

		client := NewClient(Config{APIKey: key, BaseURL: srv.URL})
		_, err := client.Transcribe(context.Background(), bufferOf(t, []byte("a")))
		require.NoError(t, err)
		assert.Equal(t, url.Values{"key": {key}}, gotQuery)

		client = NewClient(Config{APIKey: key, BaseURL: "http://127.0.0.1:1"})
		_, err = client.Transcribe(context.Background(), bufferOf(t, []byte("a")))
		require.Error(t, err)
		assert.NotContains(t, err.Error(), "sp%2Bkey")
	})
}
