// internal/chain/signer.go
package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TxRequest is a populated, unsigned transaction handed to the external
// signing collaborator. Wallet custody and signing live outside this core.
type TxRequest struct {
	From     common.Address
	To       common.Address
	Value    *big.Int
	Data     []byte
	GasLimit uint64
}

// Signer signs and broadcasts a transaction, returning its hash. Once a
// request is handed over it cannot be cancelled by this core.
type Signer interface {
	SendTransaction(ctx context.Context, req *TxRequest) (common.Hash, error)
}
