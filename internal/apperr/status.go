package apperr

import "net/http"

var statusByKind = map[Kind]int{
	KindInsufficientData: http.StatusBadRequest,
	KindExcessData:       http.StatusBadRequest,
	KindValidation:       http.StatusBadRequest,
	KindNotFound:         http.StatusNotFound,
	KindConcurrency:      http.StatusConflict,
	KindNotModified:      http.StatusNotModified,
	KindRepository:       http.StatusInternalServerError,
	KindApplication:      http.StatusInternalServerError,
}

// HTTPStatus maps the kind to the status code rendered at the HTTP boundary.
func (k Kind) HTTPStatus() int {
	if s, ok := statusByKind[k]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// StatusOf returns the HTTP status for any error.
func StatusOf(err error) int {
	return KindOf(err).HTTPStatus()
}
