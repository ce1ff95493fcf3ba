package speech

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/docpipe/internal/common"
	"github.com/ternarybob/docpipe/internal/models"
)

func newTestClient(url string) *Client {
	return NewClient(&common.SpeechConfig{
		BaseURL:   url,
		Timeout:   "5s",
		RateLimit: "0s",
	}, arbor.NewLogger())
}

func TestClient_Supports(t *testing.T) {
	c := newTestClient("http://unused")

	tests := []struct {
		lang string
		want bool
	}{
		{"en", true},
		{"en-GB", true},
		{"pt-BR", true},
		{"fr", true},
		{"", false},
		{"xx", false},
		{"not a tag", false},
		{"tlh", false},
	}
	for _, tt := range tests {
		t.Run(tt.lang, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Supports(tt.lang))
		})
	}
}

func TestClient_SynthesizeChunksAndConcatenates(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "de", r.URL.Query().Get("tl"))
		assert.LessOrEqual(t, len([]rune(r.URL.Query().Get("q"))), maxChunkRunes)
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("mp3|"))
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	text := strings.Repeat("Guten Morgen allerseits. ", 20)

	audio, err := c.Synthesize(context.Background(), text, "de")
	require.NoError(t, err)

	n := int(atomic.LoadInt32(&calls))
	assert.Greater(t, n, 1)
	assert.Equal(t, strings.Repeat("mp3|", n), string(audio))
}

func TestClient_UnsupportedLanguage(t *testing.T) {
	c := newTestClient("http://unused")
	_, err := c.Synthesize(context.Background(), "hello", "zz")
	assert.ErrorIs(t, err, models.ErrUnsupportedLanguage)
}

func TestClient_EmptyText(t *testing.T) {
	c := newTestClient("http://unused")
	_, err := c.Synthesize(context.Background(), "   ", "en")
	assert.ErrorIs(t, err, models.ErrInvalidParameter)
}

func TestClient_BackendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota", http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Synthesize(context.Background(), "hello", "en")
	assert.ErrorIs(t, err, models.ErrBackend)
	assert.Contains(t, err.Error(), "429")
}

func TestSplitText(t *testing.T) {
	long := strings.Repeat("a", 450)
	chunks := splitText("short words here "+long, 200)
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c)), 200)
	}
	assert.Equal(t, "short words here", chunks[0])
	assert.Equal(t, long, strings.Join(chunks[1:], ""))

	assert.Empty(t, splitText(" \n\t ", 200))
}
