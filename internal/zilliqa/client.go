package zilliqa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

const (
	jsonrpcVersion = "2.0"
)

var (
	ErrMissingHost   = errors.New("bad call missing argument host")
	ErrEmptyBatch    = errors.New("empty request list")
	ErrEmptyResponse = errors.New("rpc response is nil, please check your network status")
)

// A rpcClient represents a JSON RPC client (over HTTP(s)).
type rpcClient struct {
	url        string
	httpClient *retryablehttp.Client
	timeout    int
	debug      bool
}

type rpcRequest struct {
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	Id      int64       `json:"id"`
	JsonRpc string      `json:"jsonrpc"`
}

type rpcRequests []*rpcRequest

// RPCErrorCode represents an error code to be used as a part of an RPCError
// which is in turn used in a JSON-RPC Response object.
type RPCErrorCode int

// RPCError represents an error that is used as a part of a JSON-RPC Response
// object.
type RPCError struct {
	Code    RPCErrorCode `json:"code,omitempty"`
	Message string       `json:"message,omitempty"`
}

var _, _ error = RPCError{}, (*RPCError)(nil)

func (e RPCError) Error() string {
	return fmt.Sprintf("%d:%s", e.Code, e.Message)
}

type rpcResponse struct {
	Id     int64           `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

type rpcResponses []*rpcResponse

func (rResp rpcResponse) ResultAsString() (string, error) {
	var s string
	err := json.Unmarshal(rResp.Result, &s)
	return s, err
}

// ResultIsNull reports whether the node answered with a JSON null, which is
// how sub-state lookups signal a missing map key.
func (rResp rpcResponse) ResultIsNull() bool {
	return len(rResp.Result) == 0 || string(rResp.Result) == "null"
}

func (rResp rpcResponse) Decode(v interface{}) error {
	return json.Unmarshal(rResp.Result, v)
}

func NewClient(url string, timeout int, debug bool) (*rpcClient, error) {
	if len(url) == 0 {
		return nil, ErrMissingHost
	}

	retryClient := retryablehttp.NewClient()
	retryClient.Logger = nil
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 200 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second

	return &rpcClient{
		url,
		retryClient,
		timeout,
		debug,
	}, nil
}

func NewRequest(method string, params ...interface{}) *rpcRequest {
	return &rpcRequest{method, params, time.Now().UnixNano(), jsonrpcVersion}
}

func (c *rpcClient) call(ctx context.Context, method string, params interface{}) (rr *rpcResponse, err error) {
	rpcR := rpcRequest{method, params, time.Now().UnixNano(), jsonrpcVersion}

	zap.L().With(zap.String("request", rpcR.Method), zap.String("params", fmt.Sprintf("%v", params))).Debug("Zilliqa: RPC Request")

	data, err := c.post(ctx, rpcR)
	if err != nil {
		zap.L().With(zap.String("request", rpcR.Method), zap.Error(err)).Warn("Zilliqa: RPC Failure")
		return
	}

	err = json.Unmarshal(data, &rr)
	return
}

func (c *rpcClient) callBatch(ctx context.Context, requests rpcRequests) (rr rpcResponses, err error) {
	if len(requests) == 0 {
		return nil, ErrEmptyBatch
	}

	for i, req := range requests {
		req.Id = int64(i)
		req.JsonRpc = jsonrpcVersion
	}

	zap.L().With(zap.String("request", requests[0].Method), zap.Int("count", len(requests))).Debug("Zilliqa: RPC Batch Request")

	data, err := c.post(ctx, requests)
	if err != nil {
		zap.L().With(zap.String("request", requests[0].Method), zap.Error(err)).Warn("Zilliqa: RPC Failure")
		return
	}

	if err = json.Unmarshal(data, &rr); err != nil {
		return
	}

	// nodes may answer a batch out of order
	ordered := make(rpcResponses, len(requests))
	for _, resp := range rr {
		if resp != nil && resp.Id >= 0 && int(resp.Id) < len(ordered) {
			ordered[resp.Id] = resp
		}
	}

	return ordered, nil
}

func (c *rpcClient) post(ctx context.Context, payload interface{}) ([]byte, error) {
	payloadBuffer := &bytes.Buffer{}
	if err := json.NewEncoder(payloadBuffer).Encode(payload); err != nil {
		return nil, err
	}

	if c.debug {
		zap.L().With(zap.String("request", payloadBuffer.String())).Debug("Zilliqa: RPC Request")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(c.timeout)*time.Second)
	defer cancel()

	req, err := retryablehttp.NewRequest("POST", c.url, payloadBuffer.Bytes())
	if err != nil {
		return nil, err
	}
	req = req.WithContext(ctx)
	req.Header.Add("Content-Type", "application/json;charset=utf-8")
	req.Header.Add("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if c.debug {
		zap.L().With(zap.String("response", string(data))).Debug("Zilliqa: RPC Response")
	}

	return data, nil
}
