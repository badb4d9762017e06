package aggregator

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// quoteResponse is the /quote payload: the output amount for an exact input.
type quoteResponse struct {
	DstAmount string `json:"dstAmount"`
}

// swapResponse is the /swap payload: the output amount plus the transaction
// the router expects.
type swapResponse struct {
	DstAmount string `json:"dstAmount"`
	Tx        swapTx `json:"tx"`
}

type swapTx struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Data  string `json:"data"`
	Value string `json:"value"`
	Gas   int64  `json:"gas"`
}

// apiError is the error envelope returned on 4xx/5xx.
type apiError struct {
	Error       string `json:"error"`
	Description string `json:"description"`
	StatusCode  int    `json:"statusCode"`
}

// SwapCall is the payload carried on swap ops: the router target, the
// pre-encoded calldata, and the minimum acceptable output after slippage.
type SwapCall struct {
	Target    common.Address
	Data      []byte
	MinOutRaw *big.Int
}
