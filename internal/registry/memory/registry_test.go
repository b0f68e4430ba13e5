package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	nft         = "0x1111111111111111111111111111111111111111"
	marketplace = "0x9999999999999999999999999999999999999999"
	alice       = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	bob         = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

func TestApprovalAndTransfer(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(marketplace)

	require.NoError(t, r.Mint(nft, 0, alice))
	require.ErrorIs(t, r.Mint(nft, 0, bob), ErrTokenExists)

	approved, err := r.IsApprovedForMarketplace(ctx, nft, 0, marketplace)
	require.NoError(t, err)
	require.False(t, approved)

	require.ErrorIs(t, r.Transfer(ctx, nft, 0, alice, bob), ErrNotAuthorized)
	require.ErrorIs(t, r.Approve(nft, 0, bob, marketplace), ErrNotAuthorized)
	require.NoError(t, r.Approve(nft, 0, alice, marketplace))

	approved, err = r.IsApprovedForMarketplace(ctx, nft, 0, marketplace)
	require.NoError(t, err)
	require.True(t, approved)

	require.ErrorIs(t, r.Transfer(ctx, nft, 0, bob, alice), ErrNotTokenOwner)
	require.NoError(t, r.Transfer(ctx, nft, 0, alice, bob))

	owner, err := r.OwnerOf(ctx, nft, 0)
	require.NoError(t, err)
	require.Equal(t, bob, owner)

	// the single token approval is cleared by the transfer
	approved, err = r.IsApprovedForMarketplace(ctx, nft, 0, marketplace)
	require.NoError(t, err)
	require.False(t, approved)

	_, err = r.OwnerOf(ctx, nft, 1)
	require.ErrorIs(t, err, ErrTokenNotFound)
}

func TestOperatorApproval(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(marketplace)
	require.NoError(t, r.Mint(nft, 5, alice))

	r.SetApprovalForAll(alice, marketplace, true)
	approved, err := r.IsApprovedForMarketplace(ctx, nft, 5, marketplace)
	require.NoError(t, err)
	require.True(t, approved)

	r.SetApprovalForAll(alice, marketplace, false)
	approved, err = r.IsApprovedForMarketplace(ctx, nft, 5, marketplace)
	require.NoError(t, err)
	require.False(t, approved)
}

func TestHookFailureRevertsTransfer(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry("")
	require.NoError(t, r.Mint(nft, 1, alice))

	rejected := errors.New("receiver rejected token")
	r.OnTransfer(func(ctx context.Context, contract string, tokenId uint64, from, to string) error {
		return rejected
	})

	require.ErrorIs(t, r.Transfer(ctx, nft, 1, alice, bob), rejected)
	owner, err := r.OwnerOf(ctx, nft, 1)
	require.NoError(t, err)
	require.Equal(t, alice, owner)
}

func TestFailTransfers(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry("")
	require.NoError(t, r.Mint(nft, 1, alice))

	down := errors.New("node down")
	r.FailTransfers(down)
	require.ErrorIs(t, r.Transfer(ctx, nft, 1, alice, bob), down)

	r.FailTransfers(nil)
	require.NoError(t, r.Transfer(ctx, nft, 1, alice, bob))
}
