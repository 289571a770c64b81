package transfer

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"

	"github.com/bobg/cas"
)

// Server is an HTTP binding for a Handler:
// one JSON request per POST, one JSON response.
type Server struct {
	h *Handler
}

// NewServer produces a Server answering from h.
func NewServer(h *Handler) *Server {
	return &Server{h: h}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, httpReq *http.Request) {
	if httpReq.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}

	var req Request
	if err := json.NewDecoder(httpReq.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	resp := s.h.Handle(httpReq.Context(), req)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// Client speaks the transfer contract to one peer over HTTP.
type Client struct {
	base string
	hc   *http.Client
}

var _ Peer = &Client{}

// NewClient produces a Client for the peer at the given base URL.
func NewClient(base string) *Client {
	return &Client{base: base, hc: http.DefaultClient}
}

func (c *Client) do(ctx context.Context, req Request) (Response, error) {
	var resp Response

	body, err := json.Marshal(req)
	if err != nil {
		return resp, errors.Wrap(err, "marshaling request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base, bytes.NewReader(body))
	if err != nil {
		return resp, errors.Wrap(err, "building request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.hc.Do(httpReq)
	if err != nil {
		return resp, errors.Wrapf(err, "posting to %s", c.base)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return resp, errors.Errorf("peer %s returned status %d", c.base, httpResp.StatusCode)
	}

	err = json.NewDecoder(httpResp.Body).Decode(&resp)
	return resp, errors.Wrap(err, "decoding response")
}

// Get fetches the shard with the given hash from the peer.
func (c *Client) Get(ctx context.Context, h cas.Hash) (cas.Blob, error) {
	resp, err := c.do(ctx, Request{Type: ReqGet, Hash: h})
	if err != nil {
		return nil, err
	}
	switch resp.Type {
	case RespData:
		return resp.Data, nil
	case RespNotFound:
		return nil, errors.Wrapf(cas.ErrNotFound, "peer %s: blob %s", c.base, h)
	case RespError:
		return nil, errors.Errorf("peer %s: %s", c.base, resp.Error)
	}
	return nil, errors.Errorf("peer %s: unexpected response type %s", c.base, resp.Type)
}

// Have asks whether the peer holds the given hash.
func (c *Client) Have(ctx context.Context, h cas.Hash) (bool, error) {
	resp, err := c.do(ctx, Request{Type: ReqHave, Hash: h})
	if err != nil {
		return false, err
	}
	switch resp.Type {
	case RespHave:
		return resp.Have, nil
	case RespError:
		return false, errors.Errorf("peer %s: %s", c.base, resp.Error)
	}
	return false, errors.Errorf("peer %s: unexpected response type %s", c.base, resp.Type)
}

// Push offers the peer a shard for storage.
func (c *Client) Push(ctx context.Context, h cas.Hash, data []byte) error {
	resp, err := c.do(ctx, Request{Type: ReqPush, Hash: h, Data: data})
	if err != nil {
		return err
	}
	switch resp.Type {
	case RespPushAck:
		return nil
	case RespError:
		return errors.Errorf("peer %s: %s", c.base, resp.Error)
	}
	return errors.Errorf("peer %s: unexpected response type %s", c.base, resp.Type)
}
