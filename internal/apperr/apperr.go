// Package apperr models the error kinds the dispatcher surfaces to clients,
// with their HTTP status mapping.
package apperr

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Kind identifies one of the error kinds from the error handling design.
type Kind string

const (
	KindBadRequest       Kind = "bad_request"
	KindNotFound         Kind = "not_found"
	KindForbidden        Kind = "forbidden"
	KindAdmission        Kind = "admission"
	KindTimeout          Kind = "timeout"
	KindPipelineBackend  Kind = "pipeline_backend"
	KindCodecNotFound    Kind = "codec_not_found"
	KindFilterConfig     Kind = "filter_config"
	KindStorageTransient Kind = "storage_transient"
	KindCachePersist     Kind = "cache_persist"
)

// Error is a typed application error carrying a Kind and, for backend
// failures, the native operation and code that produced it.
type Error struct {
	Kind Kind
	Op   string
	Code string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, err error) *Error { return &Error{Kind: kind, Err: err} }

func Backend(op, code string, err error) *Error {
	return &Error{Kind: KindPipelineBackend, Op: op, Code: code, Err: err}
}

func status(kind Kind) int {
	switch kind {
	case KindBadRequest, KindFilterConfig:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindAdmission:
		return http.StatusTooManyRequests
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindStorageTransient:
		return http.StatusBadGateway
	case KindPipelineBackend, KindCodecNotFound:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// WriteHTTP writes err to w as a JSON error body with the status its Kind
// maps to. Non-*Error values are treated as internal errors (500).
func WriteHTTP(w http.ResponseWriter, err error) {
	var ae *Error
	code := http.StatusInternalServerError
	msg := err.Error()
	if errors.As(err, &ae) {
		code = status(ae.Kind)
		if ae.Kind == KindAdmission {
			w.Header().Set("Retry-After", "1")
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
