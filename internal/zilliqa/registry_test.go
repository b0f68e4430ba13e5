package zilliqa

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	nftContract = "0x1111111111111111111111111111111111111111"
	marketAddr  = "0x9999999999999999999999999999999999999999"
	ownerAddr   = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
)

type contractState struct {
	code      string
	spenders  string
	operators string
	opValue   string

	owners       map[string]string
	tokenSpender map[string]string
	operatorOf   map[string]map[string]bool
}

func zrc6State() *contractState {
	return &contractState{
		code:         "scilla_version 0\ncontract ZRC6\nfield token_owners: Map Uint256 ByStr20 = Emp Uint256 ByStr20\nfield spenders: Map Uint256 ByStr20 = Emp Uint256 ByStr20",
		spenders:     "spenders",
		operators:    "operators",
		opValue:      "Unit",
		owners:       map[string]string{},
		tokenSpender: map[string]string{},
		operatorOf:   map[string]map[string]bool{},
	}
}

func zrc1State() *contractState {
	s := zrc6State()
	s.code = "scilla_version 0\ncontract NonfungibleToken\nfield token_approvals: Map Uint256 ByStr20 = Emp Uint256 ByStr20"
	s.spenders = "token_approvals"
	s.operators = "operator_approvals"
	s.opValue = ""
	return s
}

func (s *contractState) serve(t *testing.T, node *fakeNode) {
	node.handle("GetSmartContractCode", func(params []json.RawMessage) (interface{}, *RPCError) {
		return map[string]string{"code": s.code}, nil
	})

	node.handle("GetSmartContractSubState", func(params []json.RawMessage) (interface{}, *RPCError) {
		require.Equal(t, "1111111111111111111111111111111111111111", stringParam(t, params[0]))
		field := stringParam(t, params[1])
		indices := indicesParam(t, params[2])

		switch field {
		case "token_owners":
			if owner, ok := s.owners[indices[0]]; ok {
				return map[string]map[string]string{field: {indices[0]: owner}}, nil
			}
		case s.spenders:
			if spender, ok := s.tokenSpender[indices[0]]; ok {
				return map[string]map[string]string{field: {indices[0]: spender}}, nil
			}
		case s.operators:
			approved, ok := s.operatorOf[indices[0]][indices[1]]
			if !ok {
				return nil, nil
			}
			constructor := s.opValue
			if s.opValue == "" {
				constructor = "False"
				if approved {
					constructor = "True"
				}
			}
			return map[string]map[string]map[string]adtValue{
				field: {indices[0]: {indices[1]: {Constructor: constructor, ArgTypes: []interface{}{}, Arguments: []interface{}{}}}},
			}, nil
		}
		return nil, nil
	})
}

func TestRegistryOwnerOf(t *testing.T) {
	node := newFakeNode(t)
	state := zrc6State()
	state.owners["1"] = "0xAAAAaaaaAAAAaaaaAAAAaaaaAAAAaaaaAAAAaaaa"
	state.serve(t, node)

	registry := NewRegistry(node.provider(), nil)

	owner, err := registry.OwnerOf(context.Background(), nftContract, 1)
	require.NoError(t, err)
	require.Equal(t, ownerAddr, owner)

	_, err = registry.OwnerOf(context.Background(), nftContract, 2)
	require.ErrorIs(t, err, ErrTokenNotFound)

	require.Equal(t, 1, node.callCount("GetSmartContractCode"))
}

func TestRegistryRejectsUnknownContracts(t *testing.T) {
	node := newFakeNode(t)
	state := zrc6State()
	state.code = "scilla_version 0\ncontract FungibleToken"
	state.serve(t, node)

	_, err := NewRegistry(node.provider(), nil).OwnerOf(context.Background(), nftContract, 1)
	require.ErrorIs(t, err, ErrUnsupportedContract)
}

func TestRegistryApprovalZrc6(t *testing.T) {
	node := newFakeNode(t)
	state := zrc6State()
	state.owners["1"] = ownerAddr
	state.owners["2"] = ownerAddr
	state.owners["3"] = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	state.tokenSpender["1"] = marketAddr
	state.operatorOf["0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"] = map[string]bool{marketAddr: true}
	state.serve(t, node)

	registry := NewRegistry(node.provider(), nil)
	ctx := context.Background()

	approved, err := registry.IsApprovedForMarketplace(ctx, nftContract, 1, marketAddr)
	require.NoError(t, err)
	require.True(t, approved, "token spender")

	approved, err = registry.IsApprovedForMarketplace(ctx, nftContract, 2, marketAddr)
	require.NoError(t, err)
	require.False(t, approved)

	approved, err = registry.IsApprovedForMarketplace(ctx, nftContract, 3, marketAddr)
	require.NoError(t, err)
	require.True(t, approved, "operator")

	_, err = registry.IsApprovedForMarketplace(ctx, nftContract, 4, marketAddr)
	require.ErrorIs(t, err, ErrTokenNotFound)
}

func TestRegistryApprovalZrc1OperatorFlag(t *testing.T) {
	for _, flag := range []bool{false, true} {
		node := newFakeNode(t)
		state := zrc1State()
		state.owners["1"] = ownerAddr
		state.operatorOf[ownerAddr] = map[string]bool{marketAddr: flag}
		state.serve(t, node)

		approved, err := NewRegistry(node.provider(), nil).IsApprovedForMarketplace(context.Background(), nftContract, 1, marketAddr)
		require.NoError(t, err)
		require.Equal(t, flag, approved)
	}
}

func TestRegistryTransferChecksCurrentOwner(t *testing.T) {
	node := newFakeNode(t)
	state := zrc6State()
	state.owners["1"] = ownerAddr
	state.serve(t, node)

	err := NewRegistry(node.provider(), nil).Transfer(context.Background(), nftContract, 1, marketAddr, "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	require.ErrorIs(t, err, ErrNotTokenOwner)
	require.Zero(t, node.callCount("CreateTransaction"))
}
