package memory

import (
	"testing"

	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/storage/storetest"
)

func TestListingStore(t *testing.T) {
	storetest.RunListingStore(t, NewStore())
}

func TestProceedsStore(t *testing.T) {
	storetest.RunProceedsStore(t, NewStore())
}

func TestReceiptStore(t *testing.T) {
	storetest.RunReceiptStore(t, NewStore())
}

func TestTransactions(t *testing.T) {
	storetest.RunTransactions(t, NewStore())
}
