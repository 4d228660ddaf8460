package apperr

import (
	"errors"
	"net/http"
)

var statusByKind = map[Kind]int{
	KindNotFound:        http.StatusNotFound,
	KindForbidden:       http.StatusForbidden,
	KindThreadLocked:    http.StatusLocked,
	KindValidation:      http.StatusBadRequest,
	KindProfanity:       http.StatusBadRequest,
	KindImageRejected:   http.StatusBadRequest,
	KindQuotaExceeded:   http.StatusForbidden,
	KindUnauthorized:    http.StatusUnauthorized,
	KindConflict:        http.StatusConflict,
	KindUpstreamFailure: http.StatusBadGateway,
	KindInternal:        http.StatusInternalServerError,
}

// Payload is the JSON body of an error response
type Payload struct {
	Code    Kind     `json:"code"`
	Detail  string   `json:"detail"`
	Field   string   `json:"field,omitempty"`
	Match   string   `json:"match,omitempty"`
	Reasons []string `json:"reasons,omitempty"`
}

// HTTPStatus maps err to a response status code
func HTTPStatus(err error) int {
	if status, ok := statusByKind[KindOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// ToPayload renders err for clients. Unclassified errors never leak their text.
func ToPayload(err error) Payload {
	var e *Error
	if !errors.As(err, &e) || e.Kind == KindInternal {
		return Payload{Code: KindInternal, Detail: "Internal server error"}
	}
	return Payload{
		Code:    e.Kind,
		Detail:  e.Message,
		Field:   e.Field,
		Match:   e.Match,
		Reasons: e.Reasons,
	}
}
