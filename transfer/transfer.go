// Package transfer implements the request/response contract
// by which a node serves shards it holds in its blob store
// and requests shards it is missing from peers.
//
// The message schema is the public contract;
// framing and transport are the caller's choice.
// An HTTP binding lives in this package for convenience,
// but Handler works over any request-response transport.
package transfer

import (
	"context"
	stderrs "errors"

	"github.com/bobg/cas"
)

// Request types.
const (
	ReqGet  = "get"  // fetch a shard by hash
	ReqHave = "have" // cheap existence probe before committing to a full fetch
	ReqPush = "push" // offer a shard for storage (replication/repair)
)

// Response types.
const (
	RespData     = "data"
	RespNotFound = "notfound"
	RespHave     = "have"
	RespPushAck  = "pushack"
	RespError    = "error"
)

// Request is one message from requester to responder.
type Request struct {
	Type string   `json:"type"`
	Hash cas.Hash `json:"hash,omitempty"`
	Data []byte   `json:"data,omitempty"`
}

// Response is the responder's single reply.
type Response struct {
	Type  string `json:"type"`
	Data  []byte `json:"data,omitempty"`
	Have  bool   `json:"have,omitempty"`
	Error string `json:"error,omitempty"`
}

// Handler answers transfer requests out of a blob store.
// It is stateless; requests for distinct hashes may be handled concurrently.
type Handler struct {
	s cas.Store
}

// NewHandler produces a Handler serving from s.
func NewHandler(s cas.Store) *Handler {
	return &Handler{s: s}
}

// Handle answers a single request.
// Contract-level failures (absent hash, mismatched push)
// come back as responses, not Go errors:
// the wire has no other channel.
func (h *Handler) Handle(ctx context.Context, req Request) Response {
	switch req.Type {
	case ReqGet:
		b, err := h.s.Get(ctx, req.Hash)
		if stderrs.Is(err, cas.ErrNotFound) {
			return Response{Type: RespNotFound}
		}
		if err != nil {
			return Response{Type: RespError, Error: err.Error()}
		}
		return Response{Type: RespData, Data: b}

	case ReqHave:
		ok, err := h.s.Exists(ctx, req.Hash)
		if err != nil {
			return Response{Type: RespError, Error: err.Error()}
		}
		return Response{Type: RespHave, Have: ok}

	case ReqPush:
		// A pushed payload is never stored under a hash it doesn't match.
		if got := cas.Sum(req.Data); got != req.Hash {
			return Response{
				Type:  RespError,
				Error: cas.MismatchError{Expected: req.Hash, Actual: got}.Error(),
			}
		}
		// Pushing an already-held hash is a no-op success.
		if _, err := h.s.Put(ctx, req.Data); err != nil {
			return Response{Type: RespError, Error: err.Error()}
		}
		return Response{Type: RespPushAck}
	}

	return Response{Type: RespError, Error: "unknown request type " + req.Type}
}
