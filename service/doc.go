// Package service provides the HTTP endpoints of a docpipe server.
//
// Command endpoints take and return relaxed extended JSON documents:
//
//	POST /aggregate    {aggregate, pipeline, cursor, maxTimeMS, let, collation, mergeLocation}
//	POST /getMore      {getMore: <id>, batchSize}
//	POST /killCursors  {killCursors: <collection>, cursors: [<id>...]}
//	POST /explain      an aggregate command plus verbosity
//
// Failed commands return {"ok": 0, "code", "codeName", "errmsg"} with a
// status derived from the error kind.  GET /metrics serves Prometheus
// metrics and GET /status a summary of the engine.
package service
