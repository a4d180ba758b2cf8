package service

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/dperr"
	"go.uber.org/zap"
)

const RequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// RequestIDFromContext returns the id requestIDMiddleware stored in ctx.
func RequestIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(requestIDKey{}).(string)
	return s
}

type Request struct {
	*http.Request
	Logger *zap.Logger
	limit  int64
}

func newRequest(w http.ResponseWriter, r *http.Request, c *Core) (*ResponseWriter, *Request) {
	req := &Request{Request: r, limit: c.conf.MaxBodyBytes}
	req.Logger = c.logger.With(zap.String("request_id", req.ID()))
	res := &ResponseWriter{
		ResponseWriter: w,
		Logger:         req.Logger,
		request:        req,
	}
	return res, req
}

func (r *Request) ID() string {
	return RequestIDFromContext(r.Context())
}

// Document reads the command document in the request body.
func (r *Request) Document(w *ResponseWriter) (*docpipe.Document, bool) {
	b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, r.limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			w.Error(dperr.E(dperr.InvalidArgument, dperr.Code(10334), "command document exceeds %d bytes", r.limit))
			return nil, false
		}
		w.Error(err)
		return nil, false
	}
	doc, err := docpipe.ParseDocument(b)
	if err != nil {
		w.Error(dperr.E(dperr.ParseError, dperr.FailedToParse, "invalid command document: %w", err))
		return nil, false
	}
	return doc, true
}

type ResponseWriter struct {
	http.ResponseWriter
	Logger  *zap.Logger
	request *Request
	written int32
}

func (w *ResponseWriter) Respond(status int, body *docpipe.Document) bool {
	b, err := docpipe.MarshalExtJSON(body)
	if err != nil {
		w.Error(err)
		return false
	}
	if !atomic.CompareAndSwapInt32(&w.written, 0, 1) {
		return false
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(b); err != nil {
		w.Logger.Warn("Error writing response", zap.Error(err))
		return false
	}
	return true
}

func (w *ResponseWriter) Error(err error) {
	if w.request != nil && errors.Is(err, context.Canceled) && w.request.Context().Err() != nil {
		w.Logger.Info("Request context canceled")
		return
	}
	status := ErrorStatus(err)
	switch {
	case dperr.IsKind(err, dperr.InternalAssertion):
		w.Logger.Error("Internal assertion", zap.Error(err), zap.Stack("stack"))
	case status >= 500:
		w.Logger.Warn("Error", zap.Int("status", status), zap.Error(err))
	}
	w.Respond(status, errorBody(err))
}

// ErrorStatus maps an error to the HTTP status of its response.
func ErrorStatus(err error) int {
	switch dperr.KindOf(err) {
	case dperr.ParseError, dperr.TypeMismatch, dperr.InvalidArgument, dperr.WrongArgumentCount, dperr.UnknownArgument:
		return http.StatusBadRequest
	case dperr.NamespaceError, dperr.CursorNotFound:
		return http.StatusNotFound
	case dperr.WriteConflict:
		return http.StatusConflict
	case dperr.MaxTimeExpired:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func errorBody(err error) *docpipe.Document {
	code := dperr.CodeOf(err)
	msg := err.Error()
	var e *dperr.Error
	if errors.As(err, &e) {
		msg = e.Message()
	}
	return docpipe.D(
		"ok", docpipe.NewInt32(0),
		"code", docpipe.NewInt32(int32(code)),
		"codeName", docpipe.NewString(code.Name()),
		"errmsg", docpipe.NewString(msg),
	)
}
