// internal/chain/abi.go
package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Launchpad contract surface used by the core: read-only sale queries, the
// on-chain pricing functions kept for parity checks, aggregate counters and
// fee parameters. All amounts are 18-decimal fixed point.
const launchpadABI = `[
	{"constant":true,"inputs":[{"name":"token","type":"address"}],"name":"getTokenSale","outputs":[{"name":"creator","type":"address"},{"name":"name","type":"string"},{"name":"symbol","type":"string"},{"name":"soldAmount","type":"uint256"},{"name":"raisedAmount","type":"uint256"},{"name":"isOpen","type":"bool"},{"name":"isLaunched","type":"bool"},{"name":"createdAt","type":"uint256"},{"name":"launchedAt","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[{"name":"soldAmount","type":"uint256"},{"name":"ethIn","type":"uint256"}],"name":"calculateTokensOut","outputs":[{"name":"tokensOut","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[{"name":"soldAmount","type":"uint256"},{"name":"tokensIn","type":"uint256"}],"name":"calculateETHOut","outputs":[{"name":"ethOut","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"totalTokensCreated","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"totalTokensLaunched","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"platformFeeBps","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"token","type":"address"},{"name":"minTokensOut","type":"uint256"}],"name":"buyToken","outputs":[],"stateMutability":"payable","type":"function"},
	{"inputs":[{"name":"token","type":"address"},{"name":"tokenAmount","type":"uint256"},{"name":"minEthOut","type":"uint256"}],"name":"sellToken","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"token","type":"address"},{"indexed":true,"name":"creator","type":"address"},{"indexed":false,"name":"name","type":"string"},{"indexed":false,"name":"symbol","type":"string"}],"name":"TokenCreated","type":"event"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"token","type":"address"},{"indexed":true,"name":"trader","type":"address"},{"indexed":false,"name":"isBuy","type":"bool"},{"indexed":false,"name":"amountIn","type":"uint256"},{"indexed":false,"name":"amountOut","type":"uint256"},{"indexed":false,"name":"newSoldAmount","type":"uint256"}],"name":"TokenTraded","type":"event"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"token","type":"address"},{"indexed":false,"name":"raisedAmount","type":"uint256"}],"name":"TokenLaunched","type":"event"}
]`

// Event topic hashes, indexed by event name.
var (
	TopicTokenCreated  = crypto.Keccak256Hash([]byte("TokenCreated(address,address,string,string)"))
	TopicTokenTraded   = crypto.Keccak256Hash([]byte("TokenTraded(address,address,bool,uint256,uint256,uint256)"))
	TopicTokenLaunched = crypto.Keccak256Hash([]byte("TokenLaunched(address,uint256)"))
)

var launchpadABIParsed = mustParseABI(launchpadABI)

// LaunchpadABI exposes the parsed contract ABI for event decoding.
func LaunchpadABI() abi.ABI {
	return launchpadABIParsed
}

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// TokenOfLog extracts the token address from the first indexed topic of a
// launchpad event log.
func TokenOfLog(topics []common.Hash) (common.Address, bool) {
	if len(topics) < 2 {
		return common.Address{}, false
	}
	return common.BytesToAddress(topics[1].Bytes()), true
}
