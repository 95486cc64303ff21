package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ollama/ollama/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComplete(t *testing.T) {
	var got api.ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"model":"llava","message":{"role":"assistant","content":"a cat"},"done":true}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL+"/api/chat", srv.Client())
	require.NoError(t, err)
	assert.Equal(t, "ollama", c.Name())

	out, err := c.Complete(context.Background(), "minicpm-v4", "what?", []byte{9, 8, 7})
	require.NoError(t, err)
	assert.Equal(t, "a cat", out)

	require.Len(t, got.Messages, 1)
	assert.Equal(t, "what?", got.Messages[0].Content)
	assert.Equal(t, api.ImageData([]byte{9, 8, 7}), got.Messages[0].Images[0])
	assert.EqualValues(t, 4096, got.Options["num_ctx"])
}

func TestNewClientRejectsBadURL(t *testing.T) {
	_, err := NewClient("not a url", nil)
	assert.Error(t, err)
}

func TestModelOptions(t *testing.T) {
	assert.Empty(t, modelOptions("llava:13b"))
	assert.Equal(t, 0.8, modelOptions("openbmb/MiniCPM-V4")["top_p"])
}
