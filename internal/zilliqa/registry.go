package zilliqa

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/Zilliqa/gozilliqa-sdk/core"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

var (
	ErrTokenNotFound       = errors.New("token not found")
	ErrUnsupportedContract = errors.New("contract is not a ZRC1 or ZRC6 nft")
	ErrNotTokenOwner       = errors.New("from is not the token owner")
)

const transferGasLimit = "10000"

// standard describes where an nft contract keeps ownership and approvals.
type standard struct {
	name           string
	spenders       string
	operators      string
	operatorIsBool bool
}

var (
	zrc6 = standard{name: "zrc6", spenders: "spenders", operators: "operators"}
	zrc1 = standard{name: "zrc1", spenders: "token_approvals", operators: "operator_approvals", operatorIsBool: true}
)

// Registry reads ownership and approvals straight from ZRC1/ZRC6 contract
// state and moves tokens with a TransferFrom signed by the marketplace key.
type Registry struct {
	provider  *Provider
	signer    *Signer
	standards *cache.Cache
	gasLimit  string
}

func NewRegistry(provider *Provider, signer *Signer) *Registry {
	return &Registry{
		provider:  provider,
		signer:    signer,
		standards: cache.New(cache.NoExpiration, 0),
		gasLimit:  transferGasLimit,
	}
}

// WithTransferGasLimit overrides the gas limit of TransferFrom calls.
func (r *Registry) WithTransferGasLimit(limit int) *Registry {
	if limit > 0 {
		r.gasLimit = strconv.Itoa(limit)
	}
	return r
}

func (r *Registry) OwnerOf(ctx context.Context, contract string, tokenId uint64) (string, error) {
	if _, err := r.standard(ctx, contract); err != nil {
		return "", err
	}

	response, err := r.provider.GetSmartContractSubState(ctx, contract, SubStateQuery{
		Field:   "token_owners",
		Indices: []string{tokenIndex(tokenId)},
	})
	if err != nil {
		return "", err
	}
	if response.ResultIsNull() {
		return "", ErrTokenNotFound
	}

	var state map[string]map[string]string
	if err := response.Decode(&state); err != nil {
		return "", err
	}

	owner, ok := state["token_owners"][tokenIndex(tokenId)]
	if !ok {
		return "", ErrTokenNotFound
	}

	return strings.ToLower(owner), nil
}

func (r *Registry) IsApprovedForMarketplace(ctx context.Context, contract string, tokenId uint64, operator string) (bool, error) {
	std, err := r.standard(ctx, contract)
	if err != nil {
		return false, err
	}

	owner, err := r.OwnerOf(ctx, contract, tokenId)
	if err != nil {
		return false, err
	}
	operator = strings.ToLower(operator)

	responses, err := r.provider.GetSmartContractSubStates(ctx, contract, []SubStateQuery{
		{Field: std.spenders, Indices: []string{tokenIndex(tokenId)}},
		{Field: std.operators, Indices: []string{owner, operator}},
	})
	if err != nil {
		return false, err
	}

	if !responses[0].ResultIsNull() {
		var spenders map[string]map[string]string
		if err := responses[0].Decode(&spenders); err != nil {
			return false, err
		}
		if strings.EqualFold(spenders[std.spenders][tokenIndex(tokenId)], operator) {
			return true, nil
		}
	}

	if responses[1].ResultIsNull() {
		return false, nil
	}

	var operators map[string]map[string]map[string]adtValue
	if err := responses[1].Decode(&operators); err != nil {
		return false, err
	}
	value, ok := operators[std.operators][owner][operator]
	if !ok {
		return false, nil
	}

	return !std.operatorIsBool || value.Constructor == "True", nil
}

func (r *Registry) Transfer(ctx context.Context, contract string, tokenId uint64, from, to string) error {
	owner, err := r.OwnerOf(ctx, contract, tokenId)
	if err != nil {
		return err
	}
	if !strings.EqualFold(owner, from) {
		return ErrNotTokenOwner
	}

	tx, err := r.signer.Call(ctx, contract, "TransferFrom", []core.ContractValue{
		{VName: "to", Type: "ByStr20", Value: strings.ToLower(to)},
		{VName: "token_id", Type: "Uint256", Value: tokenIndex(tokenId)},
	}, r.gasLimit)
	if err != nil {
		return err
	}

	zap.L().With(
		zap.String("contract", contract),
		zap.Uint64("tokenId", tokenId),
		zap.String("to", to),
		zap.String("txId", tx.ID),
	).Info("Zilliqa: Token transferred")

	return nil
}

// standard works out which nft standard a contract implements from its code.
// Contract code is immutable so the answer is cached for good.
func (r *Registry) standard(ctx context.Context, contract string) (standard, error) {
	key := strings.ToLower(contract)
	if std, found := r.standards.Get(key); found {
		return std.(standard), nil
	}

	code, err := r.provider.GetSmartContractCode(ctx, contract)
	if err != nil {
		return standard{}, err
	}

	var std standard
	switch {
	case strings.Contains(code, "field spenders"):
		std = zrc6
	case strings.Contains(code, "field token_approvals"):
		std = zrc1
	default:
		return standard{}, ErrUnsupportedContract
	}

	zap.L().With(zap.String("contract", contract), zap.String("standard", std.name)).Debug("Zilliqa: Contract standard resolved")
	r.standards.Set(key, std, cache.NoExpiration)

	return std, nil
}

func tokenIndex(tokenId uint64) string {
	return strconv.FormatUint(tokenId, 10)
}
