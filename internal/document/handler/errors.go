package handler

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/nellyolofsson/wt2/internal/apperr"
	"github.com/nellyolofsson/wt2/pkg/logger"
	"github.com/nellyolofsson/wt2/pkg/metrics"
)

const maxCauseDepth = 16

// ErrorBody is the JSON body of an error response. Only Status and Message
// are filled in production.
type ErrorBody struct {
	Status  int            `json:"status"`
	Message string         `json:"message"`
	Kind    string         `json:"kind,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
	Cause   *CauseBody     `json:"cause,omitempty"`
}

// CauseBody describes one link of a cause chain.
type CauseBody struct {
	Type    string         `json:"type"`
	Message string         `json:"message"`
	Kind    string         `json:"kind,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
	Cause   *CauseBody     `json:"cause,omitempty"`
	Causes  []*CauseBody   `json:"causes,omitempty"`
	// Circular marks an error already rendered higher up the chain.
	Circular bool `json:"circular,omitempty"`
}

// RespondError renders err and aborts the request. NotModified is answered
// with an empty 304.
func RespondError(c *gin.Context, err error, production bool) {
	kind := apperr.KindOf(err)
	status := kind.HTTPStatus()
	metrics.ErrorResponses.WithLabelValues(kind.String(), strconv.Itoa(status)).Inc()

	if kind == apperr.KindNotModified {
		c.AbortWithStatus(http.StatusNotModified)
		return
	}

	fields := logger.Fields{
		"status": status, "kind": kind.String(), "method": c.Request.Method,
		"path": c.Request.URL.Path, "error": err.Error(),
	}
	if status >= http.StatusInternalServerError {
		logger.Errorw("request failed", fields)
	} else {
		logger.Warnw("request failed", fields)
	}

	body := ErrorBody{Status: status, Message: http.StatusText(status)}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		body.Message = ae.Message()
	}
	if !production {
		body.Kind = kind.String()
		if ae != nil {
			body.Data = ae.Data()
			body.Cause = describeCause(ae.Cause(), map[uintptr]bool{}, 0)
		} else {
			body.Cause = describeCause(err, map[uintptr]bool{}, 0)
		}
	}
	c.AbortWithStatusJSON(status, body)
}

func describeCause(err error, seen map[uintptr]bool, depth int) *CauseBody {
	if err == nil {
		return nil
	}
	out := &CauseBody{Type: fmt.Sprintf("%T", err)}
	// Error() is not called on a repeated link; it may recurse through the loop.
	if v := reflect.ValueOf(err); v.Kind() == reflect.Pointer {
		if seen[v.Pointer()] {
			out.Circular = true
			return out
		}
		seen[v.Pointer()] = true
	}
	out.Message = err.Error()
	if depth >= maxCauseDepth {
		return out
	}

	switch e := err.(type) {
	case *apperr.Error:
		out.Kind = e.Kind().String()
		out.Data = e.Data()
		out.Cause = describeCause(e.Cause(), seen, depth+1)
	case interface{ Unwrap() []error }:
		for _, inner := range e.Unwrap() {
			if c := describeCause(inner, seen, depth+1); c != nil {
				out.Causes = append(out.Causes, c)
			}
		}
	default:
		out.Cause = describeCause(errors.Unwrap(err), seen, depth+1)
	}
	return out
}
