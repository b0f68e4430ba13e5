package zilliqa

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type rpcHandler func(params []json.RawMessage) (interface{}, *RPCError)

// fakeNode is a minimal JSON-RPC node answering single and batch requests.
type fakeNode struct {
	t        *testing.T
	mu       sync.Mutex
	handlers map[string]rpcHandler
	calls    map[string]int
	server   *httptest.Server
}

type fakeRequest struct {
	Id     int64             `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type fakeResponse struct {
	Id      int64       `json:"id"`
	JsonRpc string      `json:"jsonrpc"`
	Result  interface{} `json:"result"`
	Error   *RPCError   `json:"error,omitempty"`
}

func newFakeNode(t *testing.T) *fakeNode {
	n := &fakeNode{t: t, handlers: map[string]rpcHandler{}, calls: map[string]int{}}
	n.server = httptest.NewServer(http.HandlerFunc(n.serve))
	t.Cleanup(n.server.Close)

	return n
}

func (n *fakeNode) handle(method string, h rpcHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[method] = h
}

func (n *fakeNode) callCount(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[method]
}

func (n *fakeNode) provider() *Provider {
	client, err := NewClient(n.server.URL, 5, false)
	require.NoError(n.t, err)
	return NewProvider(client)
}

func (n *fakeNode) serve(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	require.NoError(n.t, err)

	w.Header().Set("Content-Type", "application/json")

	if bytes.HasPrefix(bytes.TrimSpace(body), []byte("[")) {
		var requests []fakeRequest
		require.NoError(n.t, json.Unmarshal(body, &requests))

		responses := make([]fakeResponse, 0, len(requests))
		// answer in reverse to exercise reordering
		for i := len(requests) - 1; i >= 0; i-- {
			responses = append(responses, n.answer(requests[i]))
		}
		require.NoError(n.t, json.NewEncoder(w).Encode(responses))
		return
	}

	var request fakeRequest
	require.NoError(n.t, json.Unmarshal(body, &request))
	require.NoError(n.t, json.NewEncoder(w).Encode(n.answer(request)))
}

func (n *fakeNode) answer(request fakeRequest) fakeResponse {
	n.mu.Lock()
	h, ok := n.handlers[request.Method]
	n.calls[request.Method]++
	n.mu.Unlock()

	if !ok {
		return fakeResponse{Id: request.Id, JsonRpc: "2.0", Error: &RPCError{Code: -32601, Message: "METHOD_NOT_FOUND"}}
	}

	result, rpcErr := h(request.Params)
	return fakeResponse{Id: request.Id, JsonRpc: "2.0", Result: result, Error: rpcErr}
}

func stringParam(t *testing.T, raw json.RawMessage) string {
	var s string
	require.NoError(t, json.Unmarshal(raw, &s))
	return s
}

func indicesParam(t *testing.T, raw json.RawMessage) []string {
	var indices []string
	require.NoError(t, json.Unmarshal(raw, &indices))
	return indices
}
