package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "iaicore/internal/errors"
)

func TestNewClient_RequiresAPIKey(t *testing.T) {
	_, err := NewClient(Config{})
	require.Error(t, err)

	c, err := NewClient(Config{APIKey: "k"})
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestChatCompletion_TransportErrorTagged(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // nothing listens: every request fails at the transport

	c := &OpenAIClient{APIKey: "k", BaseURL: srv.URL, Timeout: time.Second}
	_, err := c.ChatCompletion(context.Background(), "test-model", "hello", 16)

	require.Error(t, err)
	assert.Equal(t, apperrors.CodeExternalService, apperrors.GetCode(err))
}

func TestChatCompletion_RequiresModel(t *testing.T) {
	c := &OpenAIClient{APIKey: "k", BaseURL: "http://127.0.0.1:1"}
	_, err := c.ChatCompletion(context.Background(), "", "hello", 16)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing model")
}
