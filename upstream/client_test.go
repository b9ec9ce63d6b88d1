package upstream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewClientDefaults(t *testing.T) {
	client := NewClient("  ", " key ", "")
	require.Equal(t, DefaultBaseURL, client.BaseURL)
	require.Equal(t, DefaultModel, client.Model)
	require.Equal(t, "key", client.APIKey)
}

func TestClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient("", "", "").Complete(context.Background(), "hi")
	require.Error(t, err)
	require.Contains(t, err.Error(), "api key")
}

func TestClientSendsRequestAndParsesResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.JSONEq(t, `{"messages":[{"role":"user","content":"what is go?"}],"model":"test-model"}`, string(body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"A language."}}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", "test-key", "test-model")
	client.HTTPClient = server.Client()

	reply, err := client.Complete(context.Background(), "what is go?")
	require.NoError(t, err)
	require.Equal(t, "A language.", reply)
}

func TestClientFallsBackWhenContentMissing(t *testing.T) {
	bodies := []string{
		`{"choices":[]}`,
		`{}`,
		`{"choices":[{}]}`,
		`{"choices":[{"message":{"role":"assistant"}}]}`,
	}
	for _, body := range bodies {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		}))

		client := NewClient(server.URL, "k", "")
		reply, err := client.Complete(context.Background(), "hi")
		server.Close()

		require.NoError(t, err, body)
		require.Equal(t, FallbackReply, reply, body)
	}
}

func TestClientErrorsOnNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("invalid api key"))
	}))
	defer server.Close()

	_, err := NewClient(server.URL, "k", "").Complete(context.Background(), "hi")
	require.Error(t, err)

	var providerErr *ProviderError
	require.True(t, errors.As(err, &providerErr))
	require.Equal(t, http.StatusUnauthorized, providerErr.StatusCode)
	require.Contains(t, err.Error(), "status 401")
	require.Contains(t, err.Error(), "invalid api key")
}

func TestClientErrorsOnUndecodableBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>gateway</html>"))
	}))
	defer server.Close()

	_, err := NewClient(server.URL, "k", "").Complete(context.Background(), "hi")
	require.Error(t, err)
	require.Contains(t, err.Error(), "decode response")
}

func TestClientCapsResponseSize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"`))
		_, _ = w.Write([]byte(strings.Repeat("a", 2*MaxResponseBytes)))
		_, _ = w.Write([]byte(`"}}]}`))
	}))
	defer server.Close()

	_, err := NewClient(server.URL, "k", "").Complete(context.Background(), "hi")
	require.Error(t, err)
	require.Contains(t, err.Error(), "decode response")
}

func TestClientHonoursTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := NewClient(server.URL, "k", "")
	client.Timeout = 50 * time.Millisecond

	_, err := client.Complete(context.Background(), "hi")
	require.Error(t, err)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
