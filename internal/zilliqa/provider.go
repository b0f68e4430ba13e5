/*
 * Copyright (C) 2019 Zilliqa
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */
package zilliqa

import (
	"context"
	"strings"
)

type Provider struct {
	rpcClient *rpcClient
}

func NewProvider(rpcClient *rpcClient) *Provider {
	return &Provider{rpcClient: rpcClient}
}

func (p *Provider) Url() string {
	return p.rpcClient.url
}

func (p *Provider) GetNetworkId(ctx context.Context) (string, error) {
	response, err := p.call(ctx, "GetNetworkId")
	if err != nil {
		return "", err
	}

	return response.ResultAsString()
}

func (p *Provider) GetMinimumGasPrice(ctx context.Context) (string, error) {
	response, err := p.call(ctx, "GetMinimumGasPrice")
	if err != nil {
		return "", err
	}

	return response.ResultAsString()
}

// Returns the current balance of an account, measured in the smallest accounting unit Qa (or 10^-12 Zil),
// and the current nonce of the account.
func (p *Provider) GetBalance(ctx context.Context, address string) (*BalanceAndNonce, error) {
	response, err := p.call(ctx, "GetBalance", rpcAddress(address))
	if err != nil {
		return nil, err
	}

	balanceAndNonce := BalanceAndNonce{
		Balance: "0",
		Nonce:   0,
	}
	if err := response.Decode(&balanceAndNonce); err != nil {
		return nil, err
	}

	return &balanceAndNonce, nil
}

func (p *Provider) GetSmartContractCode(ctx context.Context, contractAddr string) (string, error) {
	response, err := p.call(ctx, "GetSmartContractCode", rpcAddress(contractAddr))
	if err != nil {
		return "", err
	}

	var result struct {
		Code string `json:"code"`
	}
	if err := response.Decode(&result); err != nil {
		return "", err
	}

	return result.Code, nil
}

// GetSmartContractSubState reads one field of a contract's mutable state,
// optionally narrowed by map keys. A missing key yields a null result.
func (p *Provider) GetSmartContractSubState(ctx context.Context, contractAddr string, query SubStateQuery) (*rpcResponse, error) {
	return p.call(ctx, "GetSmartContractSubState", rpcAddress(contractAddr), query.Field, query.indices())
}

// GetSmartContractSubStates answers several sub-state queries against the
// same contract in one batch. Responses are in query order.
func (p *Provider) GetSmartContractSubStates(ctx context.Context, contractAddr string, queries []SubStateQuery) (rpcResponses, error) {
	var requests rpcRequests
	for _, query := range queries {
		requests = append(requests, NewRequest("GetSmartContractSubState", rpcAddress(contractAddr), query.Field, query.indices()))
	}

	responses, err := p.callBatch(ctx, requests)
	if err != nil {
		return nil, err
	}

	for _, response := range responses {
		if response == nil {
			return nil, ErrEmptyResponse
		}
		if response.Error != nil {
			return nil, response.Error
		}
	}

	return responses, nil
}

// CreateTransaction submits an already signed transaction payload.
func (p *Provider) CreateTransaction(ctx context.Context, payload interface{}) (*CreateTransactionResult, error) {
	response, err := p.call(ctx, "CreateTransaction", payload)
	if err != nil {
		return nil, err
	}

	var result CreateTransactionResult
	if err := response.Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func (p *Provider) GetTransaction(ctx context.Context, txId string) (*Transaction, error) {
	response, err := p.call(ctx, "GetTransaction", txId)
	if err != nil {
		return nil, err
	}

	var tx Transaction
	if err := response.Decode(&tx); err != nil {
		return nil, err
	}

	return &tx, nil
}

func (p *Provider) call(ctx context.Context, method string, params ...interface{}) (*rpcResponse, error) {
	response, err := p.rpcClient.call(ctx, method, params)
	if err != nil {
		return nil, err
	}

	if response == nil {
		return nil, ErrEmptyResponse
	}

	if response.Error != nil {
		return nil, response.Error
	}

	return response, nil
}

func (p *Provider) callBatch(ctx context.Context, requests rpcRequests) (rpcResponses, error) {
	responses, err := p.rpcClient.callBatch(ctx, requests)
	if err != nil {
		return nil, err
	}

	if responses == nil {
		return nil, ErrEmptyResponse
	}

	return responses, nil
}

// The node api expects base16 addresses without the 0x prefix.
func rpcAddress(addr string) string {
	return strings.TrimPrefix(strings.ToLower(addr), "0x")
}
