// -----------------------------------------------------------------------
// Speech Client - text-to-speech over a translate_tts compatible endpoint
// -----------------------------------------------------------------------

package speech

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/docpipe/internal/common"
	"github.com/ternarybob/docpipe/internal/interfaces"
	"github.com/ternarybob/docpipe/internal/models"
	"golang.org/x/text/language"
	"golang.org/x/time/rate"
)

// maxChunkRunes is the longest text the endpoint accepts per request
const maxChunkRunes = 200

// supportedLanguages are the base languages the endpoint voices
var supportedLanguages = map[string]bool{
	"af": true, "ar": true, "bg": true, "bn": true, "bs": true, "ca": true, "cs": true,
	"da": true, "de": true, "el": true, "en": true, "es": true, "et": true, "fi": true,
	"fr": true, "gu": true, "hi": true, "hr": true, "hu": true, "id": true, "is": true,
	"it": true, "iw": true, "he": true, "ja": true, "jw": true, "km": true, "kn": true,
	"ko": true, "la": true, "lv": true, "ml": true, "mr": true, "ms": true, "my": true,
	"ne": true, "nl": true, "no": true, "pl": true, "pt": true, "ro": true, "ru": true,
	"si": true, "sk": true, "sq": true, "sr": true, "su": true, "sv": true, "sw": true,
	"ta": true, "te": true, "th": true, "tl": true, "tr": true, "uk": true, "ur": true,
	"vi": true, "zh": true, "jv": true, "fil": true, "nb": true,
}

// Client implements interfaces.SpeechSynthesizer
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     arbor.ILogger
}

var _ interfaces.SpeechSynthesizer = (*Client)(nil)

// NewClient creates a speech client from config
func NewClient(config *common.SpeechConfig, logger arbor.ILogger) *Client {
	timeout := common.ParseDurationOr(config.Timeout, 30*time.Second)
	interval := common.ParseDurationOr(config.RateLimit, 200*time.Millisecond)

	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}

	return &Client{
		baseURL:    config.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger,
	}
}

// Supports reports whether language parses as a BCP 47 tag whose base
// language the endpoint voices
func (c *Client) Supports(lang string) bool {
	_, ok := normalizeLanguage(lang)
	return ok
}

// Synthesize splits text into endpoint-sized chunks and concatenates the mp3 replies
func (c *Client) Synthesize(ctx context.Context, text, lang string) ([]byte, error) {
	tag, ok := normalizeLanguage(lang)
	if !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrUnsupportedLanguage, lang)
	}

	chunks := splitText(text, maxChunkRunes)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: no text to synthesize", models.ErrInvalidParameter)
	}

	var audio bytes.Buffer
	for i, chunk := range chunks {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		data, err := c.fetch(ctx, chunk, tag, i, len(chunks))
		if err != nil {
			return nil, err
		}
		audio.Write(data)
	}

	c.logger.Debug().Str("language", tag).Int("chunks", len(chunks)).Int("audio_size", audio.Len()).Msg("Speech synthesized")
	return audio.Bytes(), nil
}

func (c *Client) fetch(ctx context.Context, chunk, lang string, idx, total int) ([]byte, error) {
	q := url.Values{}
	q.Set("ie", "UTF-8")
	q.Set("client", "tw-ob")
	q.Set("tl", lang)
	q.Set("q", chunk)
	q.Set("idx", fmt.Sprint(idx))
	q.Set("total", fmt.Sprint(total))
	q.Set("textlen", fmt.Sprint(len([]rune(chunk))))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", models.ErrBackend, err)
	}
	req.Header.Set("User-Agent", "docpipe/"+common.GetVersion())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: speech request: %v", models.ErrBackend, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: speech backend returned %d: %s", models.ErrBackend, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read speech response: %v", models.ErrBackend, err)
	}
	return data, nil
}

// normalizeLanguage canonicalises a language code and reports whether the
// endpoint supports it. Regional variants (en-GB, pt-BR) are kept intact.
func normalizeLanguage(lang string) (string, bool) {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		return "", false
	}
	tag, err := language.Parse(lang)
	if err != nil {
		return "", false
	}
	base, conf := tag.Base()
	if conf == language.No || !supportedLanguages[base.String()] {
		return "", false
	}
	return tag.String(), true
}

// splitText breaks text into chunks of at most limit runes, preferring
// sentence then word boundaries
func splitText(text string, limit int) []string {
	words := strings.Fields(text)
	var chunks []string
	var current []rune

	flush := func() {
		if s := strings.TrimSpace(string(current)); s != "" {
			chunks = append(chunks, s)
		}
		current = current[:0]
	}

	for _, word := range words {
		w := []rune(word)
		for len(w) > limit {
			flush()
			chunks = append(chunks, string(w[:limit]))
			w = w[limit:]
		}
		if len(current) > 0 && len(current)+1+len(w) > limit {
			flush()
		}
		if len(current) > 0 {
			current = append(current, ' ')
		}
		current = append(current, w...)
		if strings.HasSuffix(word, ".") && len(current) > limit/2 {
			flush()
		}
	}
	flush()
	return chunks
}
