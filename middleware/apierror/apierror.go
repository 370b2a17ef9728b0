// Package apierror traduz erros da aplicação para o envelope JSON da API:
//
//	{"error":{"message":"...","status":404,"timestamp":"..."}}
//
// Erros de validação levam "fields"; rejeições de rate limit levam
// "retryAfter"; em modo desenvolvimento 5xx levam "stack".
package apierror

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"github.com/rusiqe/bespoke-matchmaking-platform/internal/logging"
)

// TimestampFormat é ISO-8601 em UTC com milissegundos.
const TimestampFormat = "2006-01-02T15:04:05.000Z07:00"

var development atomic.Bool

// SetDevelopment liga a exposição de detalhes internos (mensagem original e
// stack) nas respostas 5xx.
func SetDevelopment(on bool) { development.Store(on) }

// AppError é um erro com status HTTP e mensagem pública.
type AppError struct {
	Status  int
	Message string
	Fields  map[string]string
	// RetryAfter em segundos; só vai para o corpo quando > 0.
	RetryAfter int64
	Err        error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

func New(status int, message string) *AppError {
	return &AppError{Status: status, Message: message}
}

func Validation(message string, fields map[string]string) *AppError {
	return &AppError{Status: http.StatusBadRequest, Message: message, Fields: fields}
}

func Unauthorized(message string) *AppError {
	if message == "" {
		message = "Authentication failed"
	}
	return New(http.StatusUnauthorized, message)
}

func Forbidden(message string) *AppError {
	if message == "" {
		message = "Insufficient permissions"
	}
	return New(http.StatusForbidden, message)
}

func NotFoundError(message string) *AppError {
	if message == "" {
		message = "Resource not found"
	}
	return New(http.StatusNotFound, message)
}

func TooManyRequests(message string, retryAfter int64) *AppError {
	if message == "" {
		message = "Too many requests"
	}
	return &AppError{Status: http.StatusTooManyRequests, Message: message, RetryAfter: retryAfter}
}

func NotImplemented(message string) *AppError {
	if message == "" {
		message = "Not implemented"
	}
	return New(http.StatusNotImplemented, message)
}

func Internal(err error) *AppError {
	return &AppError{Status: http.StatusInternalServerError, Message: "Internal server error", Err: err}
}

// Body é o envelope JSON de erro.
type Body struct {
	Error Payload `json:"error"`
}

type Payload struct {
	Message    string            `json:"message"`
	Status     int               `json:"status"`
	RetryAfter int64             `json:"retryAfter,omitempty"`
	Timestamp  string            `json:"timestamp"`
	Fields     map[string]string `json:"fields,omitempty"`
	Stack      string            `json:"stack,omitempty"`
}

// NewBody monta o envelope para o erro, no instante now.
func NewBody(e *AppError, now time.Time) Body {
	p := Payload{
		Message:    e.Message,
		Status:     e.Status,
		RetryAfter: e.RetryAfter,
		Timestamp:  now.UTC().Format(TimestampFormat),
		Fields:     e.Fields,
	}
	if development.Load() && e.Status >= http.StatusInternalServerError {
		if e.Err != nil {
			p.Message = e.Err.Error()
		}
		p.Stack = string(debug.Stack())
	}
	return Body{Error: p}
}

// From converte qualquer erro em *AppError; erros desconhecidos viram 500.
func From(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}

// Write responde o erro no envelope JSON. 5xx são logados em ERROR com os
// dados da request.
func Write(w http.ResponseWriter, r *http.Request, err error) {
	appErr := From(err)

	if appErr.Status >= http.StatusInternalServerError {
		logging.Ctx(r.Context()).Error().
			Err(err).
			Int("status", appErr.Status).
			Str("url", r.URL.RequestURI()).
			Str("method", r.Method).
			Str("ip", clientIP(r)).
			Str("user_agent", r.UserAgent()).
			Msg("request failed")
	}

	WriteBody(w, appErr.Status, NewBody(appErr, time.Now()))
}

// WriteBody serializa um envelope já montado.
func WriteBody(w http.ResponseWriter, status int, body Body) {
	payload, err := json.Marshal(body)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

// NotFound responde 404 para rotas inexistentes.
func NotFound(w http.ResponseWriter, r *http.Request) {
	Write(w, r, NotFoundError(fmt.Sprintf("Route %s not found", r.URL.RequestURI())))
}

func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	Write(w, r, New(http.StatusMethodNotAllowed, fmt.Sprintf("Method %s not allowed on %s", r.Method, r.URL.Path)))
}

// Recoverer transforma panics em 500 no envelope padrão.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			logging.Ctx(r.Context()).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Str("url", r.URL.RequestURI()).
				Str("method", r.Method).
				Msg("panic recovered")
			Write(w, r, Internal(fmt.Errorf("panic: %v", rec)))
		}()
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host := r.RemoteAddr
	if i := strings.LastIndexByte(host, ':'); i > 0 {
		host = host[:i]
	}
	return strings.Trim(host, "[]")
}
