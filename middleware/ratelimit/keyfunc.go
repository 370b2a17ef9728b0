package ratelimit

import (
	"bytes"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"

	"github.com/rusiqe/bespoke-matchmaking-platform/middleware/principal"
)

// MaxKeyBodyBytes limita quanto do corpo é lido para extrair a chave.
const MaxKeyBodyBytes = 1 << 20

// KeyFunc deriva a chave de rate limit da request.
type KeyFunc func(r *http.Request) string

// KeyByIP usa o IP do cliente. Com trustProxy, considera True-Client-IP,
// X-Real-IP e o primeiro IP de X-Forwarded-For; use só atrás de proxy confiável.
func KeyByIP(trustProxy bool) KeyFunc {
	return func(r *http.Request) string {
		var (
			key string
			err error
		)
		if trustProxy {
			key, err = httprate.KeyByRealIP(r)
		} else {
			key, err = httprate.KeyByIP(r)
		}
		if err != nil || key == "" {
			return "unknown"
		}
		return key
	}
}

// KeyByPrincipal usa o id do usuário autenticado; anônimos caem em fallback.
func KeyByPrincipal(fallback KeyFunc) KeyFunc {
	return func(r *http.Request) string {
		if id := principal.ID(r.Context()); id != "" {
			return id
		}
		return fallback(r)
	}
}

// KeyByHeader usa o valor de um header (ex.: X-Api-Key); ausente cai em fallback.
func KeyByHeader(name string, fallback KeyFunc) KeyFunc {
	return func(r *http.Request) string {
		if v := strings.TrimSpace(r.Header.Get(name)); v != "" {
			return v
		}
		return fallback(r)
	}
}

// KeyByBodyField usa um campo do corpo (JSON ou form urlencoded), por exemplo
// o e-mail de um pedido de reset de senha. O corpo é devolvido intacto para o
// handler seguinte. Campo ausente, vazio ou corpo ilegível cai em fallback.
func KeyByBodyField(field string, fallback KeyFunc) KeyFunc {
	return func(r *http.Request) string {
		if v := bodyField(r, field); v != "" {
			return v
		}
		return fallback(r)
	}
}

// DefaultKeyFunc usa o header informado e, na falta dele, o IP do cliente.
func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	ip := KeyByIP(trustXFF)
	if keyHeader == "" {
		return ip
	}
	return KeyByHeader(keyHeader, ip)
}

func bodyField(r *http.Request, field string) string {
	if r.Body == nil || r.Body == http.NoBody {
		return ""
	}

	buf, err := io.ReadAll(io.LimitReader(r.Body, MaxKeyBodyBytes))
	// o que passou do limite continua no reader original
	r.Body = readCloser{Reader: io.MultiReader(bytes.NewReader(buf), r.Body), Closer: r.Body}
	if err != nil || len(buf) == 0 {
		return ""
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch {
	case mediaType == "application/x-www-form-urlencoded":
		values, err := url.ParseQuery(string(buf))
		if err != nil {
			return ""
		}
		return strings.TrimSpace(values.Get(field))
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json") || looksLikeJSON(buf):
		var payload map[string]any
		if err := json.Unmarshal(buf, &payload); err != nil {
			return ""
		}
		s, _ := payload[field].(string)
		return strings.TrimSpace(s)
	default:
		return ""
	}
}

func looksLikeJSON(buf []byte) bool {
	trimmed := bytes.TrimSpace(buf)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

type readCloser struct {
	io.Reader
	io.Closer
}
