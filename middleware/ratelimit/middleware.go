package ratelimit

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"admission-gateway/middleware/ratelimit/application"
	"admission-gateway/middleware/ratelimit/domain"

	"go.uber.org/zap"
)

const (
	DefaultNamespace = "http_"

	codeResourceExhausted = "RESOURCE_EXHAUSTED"
	codeInternal          = "INTERNAL"
)

type ClientIPFunc func(r *http.Request) string

type Options struct {
	Gate *application.Gate
	// Namespace separa os endpoints HTTP de outros transportes no Container.
	Namespace          string
	ClientIPFn         ClientIPFunc
	TrustXForwardedFor bool
	// HeaderKeys são copiados para o RuntimeData de cada requisição.
	HeaderKeys          []string
	RejectStatus        int
	AddRateLimitHeaders bool
	Logger              *zap.Logger
}

// errorBody é o payload JSON de recusa / falha.
type errorBody struct {
	Code     string `json:"code"`
	Error    string `json:"error"`
	Endpoint string `json:"endpoint,omitempty"`
}

func DefaultClientIPFunc(trustXFF bool) ClientIPFunc {
	return func(r *http.Request) string {
		if trustXFF {
			// pega o primeiro IP do X-Forwarded-For (cliente original)
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				if ip := strings.TrimSpace(first); ip != "" {
					return ip
				}
			}
		}

		// fallback: RemoteAddr
		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}

// NewRuntimeData monta o snapshot da requisição para o gate.
func NewRuntimeData(r *http.Request, clientIP string, headerKeys []string) domain.RuntimeData {
	var headers map[string][]string
	if len(headerKeys) > 0 {
		headers = make(map[string][]string, len(headerKeys))
		for _, k := range headerKeys {
			if v := r.Header.Get(k); v != "" {
				headers[k] = []string{v}
			}
		}
	}
	return domain.NewRuntimeData(r.Method, r.URL.Path, clientIP, headers)
}

// Middleware devolve uma fábrica de middlewares por endpoint:
//
//	limit := ratelimit.Middleware(opts)
//	r.With(limit("GetNowBlock")).Get("/wallet/getnowblock", h)
//
// Fluxo: GlobalGate -> limiter do endpoint -> handler -> Release (sempre).
func Middleware(opts Options) func(endpoint string) func(next http.Handler) http.Handler {
	if opts.Namespace == "" {
		opts.Namespace = DefaultNamespace
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}
	if opts.ClientIPFn == nil {
		opts.ClientIPFn = DefaultClientIPFunc(opts.TrustXForwardedFor)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return func(endpoint string) func(next http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			if opts.Gate == nil {
				return next
			}

			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				rd := NewRuntimeData(r, opts.ClientIPFn(r), opts.HeaderKeys)
				permit, dec := opts.Gate.Admit(r.Context(), opts.Namespace, endpoint, rd)

				if opts.AddRateLimitHeaders {
					w.Header().Set("X-RateLimit-Endpoint", endpoint)
					if dec.Strategy != "" {
						w.Header().Set("X-RateLimit-Strategy", dec.Strategy)
					}
				}

				if !dec.Allowed {
					w.Header().Set("Retry-After", formatRetryAfter(dec.RetryAfter))
					writeJSONError(w, opts.RejectStatus, errorBody{
						Code:     codeResourceExhausted,
						Error:    dec.Reason,
						Endpoint: endpoint,
					})
					return
				}

				// o release roda depois do recover, em qualquer saída do handler
				defer permit.Release()
				defer recoverHandler(w, r, opts.Logger, endpoint)

				next.ServeHTTP(w, r)
			})
		}
	}
}

func recoverHandler(w http.ResponseWriter, r *http.Request, logger *zap.Logger, endpoint string) {
	p := recover()
	if p == nil {
		return
	}
	if err, ok := p.(error); ok && errors.Is(err, http.ErrAbortHandler) {
		panic(p)
	}

	logger.Error("http api handler failed",
		zap.String("endpoint", endpoint),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Any("panic", p),
		zap.Stack("stack"),
	)
	writeJSONError(w, http.StatusInternalServerError, errorBody{
		Code:     codeInternal,
		Error:    http.StatusText(http.StatusInternalServerError),
		Endpoint: endpoint,
	})
}

func writeJSONError(w http.ResponseWriter, status int, body errorBody) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
