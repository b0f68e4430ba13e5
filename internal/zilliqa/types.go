package zilliqa

type BalanceAndNonce struct {
	Balance string `json:"balance"`
	Nonce   int64  `json:"nonce"`
}

type CreateTransactionResult struct {
	Info            string `json:"Info"`
	TranID          string `json:"TranID"`
	ContractAddress string `json:"ContractAddress,omitempty"`
}

type Transaction struct {
	ID           string             `json:"ID"`
	Amount       string             `json:"amount"`
	ToAddr       string             `json:"toAddr"`
	SenderPubKey string             `json:"senderPubKey"`
	Data         string             `json:"data,omitempty"`
	GasPrice     string             `json:"gasPrice"`
	GasLimit     string             `json:"gasLimit"`
	Nonce        string             `json:"nonce"`
	Receipt      TransactionReceipt `json:"receipt"`
}

type TransactionReceipt struct {
	Success       bool                   `json:"success"`
	EpochNum      string                 `json:"epoch_num"`
	CumulativeGas string                 `json:"cumulative_gas"`
	Errors        map[string][]int       `json:"errors,omitempty"`
	Exceptions    []TransactionException `json:"exceptions,omitempty"`
}

type TransactionException struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// SubStateQuery names a contract field and the map keys to descend into.
type SubStateQuery struct {
	Field   string
	Indices []string
}

func (q SubStateQuery) indices() []string {
	if q.Indices == nil {
		return []string{}
	}
	return q.Indices
}

// adtValue is how scilla encodes constructors such as Bool and Unit in state.
type adtValue struct {
	Constructor string        `json:"constructor"`
	ArgTypes    []interface{} `json:"argtypes"`
	Arguments   []interface{} `json:"arguments"`
}
