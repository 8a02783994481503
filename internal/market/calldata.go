// internal/market/calldata.go
package market

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const swapRouterABIRaw = `[
  {"name":"swapExactETHForTokens","type":"function","stateMutability":"payable","inputs":[{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"outputs":[{"name":"amounts","type":"uint256[]"}]},
  {"name":"swapExactTokensForETH","type":"function","stateMutability":"nonpayable","inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"outputs":[{"name":"amounts","type":"uint256[]"}]}
]`

var swapRouterABI = mustABI(swapRouterABIRaw)

// swapDeadline bounds how long a broadcast swap stays valid on-chain.
const swapDeadline = 60 * time.Second

// BuySwapCallData packs a native-in swap along path for the V2 router.
func BuySwapCallData(minOut *big.Int, path []common.Address, recipient common.Address) ([]byte, error) {
	deadline := big.NewInt(time.Now().Add(swapDeadline).Unix())
	return swapRouterABI.Pack("swapExactETHForTokens", minOut, path, recipient, deadline)
}

// SellSwapCallData packs a token-in, native-out swap along path.
func SellSwapCallData(amountIn, minOut *big.Int, path []common.Address, recipient common.Address) ([]byte, error) {
	deadline := big.NewInt(time.Now().Add(swapDeadline).Unix())
	return swapRouterABI.Pack("swapExactTokensForETH", amountIn, minOut, path, recipient, deadline)
}
