package service

import (
	"net/http"

	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/cursor"
	"github.com/brimdata/docpipe/driver"
	"github.com/brimdata/docpipe/dperr"
	"go.uber.org/zap"
)

func handleAggregate(c *Core, w *ResponseWriter, r *Request) {
	cmd, ok := r.Document(w)
	if !ok {
		return
	}
	req, err := driver.ParseAggregate(cmd)
	if err != nil {
		w.Error(err)
		return
	}
	if req.Explain {
		explain(c, w, r, req, driver.QueryPlanner)
		return
	}
	batch, err := c.engine.Aggregate(r.Context(), req)
	if err != nil {
		w.Error(err)
		return
	}
	r.Logger.Debug("Aggregate", zap.String("collection", req.Collection), zap.Int64("cursor", batch.ID))
	w.Respond(http.StatusOK, cursorResponse(batch, "firstBatch"))
}

func handleGetMore(c *Core, w *ResponseWriter, r *Request) {
	cmd, ok := r.Document(w)
	if !ok {
		return
	}
	req, err := driver.ParseGetMore(cmd)
	if err != nil {
		w.Error(err)
		return
	}
	batch, err := c.engine.GetMore(r.Context(), req)
	if err != nil {
		w.Error(err)
		return
	}
	w.Respond(http.StatusOK, cursorResponse(batch, "nextBatch"))
}

func handleKillCursors(c *Core, w *ResponseWriter, r *Request) {
	cmd, ok := r.Document(w)
	if !ok {
		return
	}
	ids, err := driver.ParseKillCursors(cmd)
	if err != nil {
		w.Error(err)
		return
	}
	killed, notFound, err := c.engine.KillCursors(r.Context(), ids)
	if err != nil {
		// The cursors are gone either way.
		r.Logger.Warn("Error closing killed cursors", zap.Error(err))
	}
	w.Respond(http.StatusOK, docpipe.D(
		"cursorsKilled", idArray(killed),
		"cursorsNotFound", idArray(notFound),
		"cursorsAlive", docpipe.NewArray(nil),
		"cursorsUnknown", docpipe.NewArray(nil),
		"ok", docpipe.NewInt32(1),
	))
}

// handleExplain takes an aggregate command with an optional verbosity
// field.
func handleExplain(c *Core, w *ResponseWriter, r *Request) {
	cmd, ok := r.Document(w)
	if !ok {
		return
	}
	verbosity := driver.QueryPlanner
	if v := cmd.Get("verbosity"); !v.IsMissing() {
		if v.Kind() != docpipe.KindString {
			w.Error(dperr.E(dperr.TypeMismatch, "verbosity must be a string"))
			return
		}
		verbosity = v.Str()
		b := docpipe.NewBuilder(cmd)
		b.Delete("verbosity")
		cmd = b.Document()
	}
	req, err := driver.ParseAggregate(cmd)
	if err != nil {
		w.Error(err)
		return
	}
	explain(c, w, r, req, verbosity)
}

func explain(c *Core, w *ResponseWriter, r *Request, req *driver.AggregateRequest, verbosity string) {
	doc, err := c.engine.Explain(r.Context(), req, verbosity)
	if err != nil {
		w.Error(err)
		return
	}
	w.Respond(http.StatusOK, doc)
}

func cursorResponse(b cursor.Batch, field string) *docpipe.Document {
	docs := make([]docpipe.Value, 0, len(b.Documents))
	for _, d := range b.Documents {
		docs = append(docs, docpipe.NewDocumentValue(d))
	}
	return docpipe.D(
		"cursor", docpipe.NewDocumentValue(docpipe.D(
			field, docpipe.NewArray(docs),
			"id", docpipe.NewInt64(b.ID),
			"ns", docpipe.NewString(b.Namespace),
		)),
		"ok", docpipe.NewInt32(1),
	)
}

func idArray(ids []int64) docpipe.Value {
	vals := make([]docpipe.Value, 0, len(ids))
	for _, id := range ids {
		vals = append(vals, docpipe.NewInt64(id))
	}
	return docpipe.NewArray(vals)
}
