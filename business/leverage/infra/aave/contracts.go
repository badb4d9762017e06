package aave

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PoolABI covers the Aave V3 Pool entry points the adapter composes against
// and the read used for the flash-loan premium.
const PoolABI = `[
	{
		"inputs": [
			{"internalType": "address", "name": "asset", "type": "address"},
			{"internalType": "uint256", "name": "amount", "type": "uint256"},
			{"internalType": "address", "name": "onBehalfOf", "type": "address"},
			{"internalType": "uint16", "name": "referralCode", "type": "uint16"}
		],
		"name": "supply",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "address", "name": "asset", "type": "address"},
			{"internalType": "uint256", "name": "amount", "type": "uint256"},
			{"internalType": "address", "name": "to", "type": "address"}
		],
		"name": "withdraw",
		"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "address", "name": "asset", "type": "address"},
			{"internalType": "uint256", "name": "amount", "type": "uint256"},
			{"internalType": "uint256", "name": "interestRateMode", "type": "uint256"},
			{"internalType": "uint16", "name": "referralCode", "type": "uint16"},
			{"internalType": "address", "name": "onBehalfOf", "type": "address"}
		],
		"name": "borrow",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "address", "name": "asset", "type": "address"},
			{"internalType": "uint256", "name": "amount", "type": "uint256"},
			{"internalType": "uint256", "name": "interestRateMode", "type": "uint256"},
			{"internalType": "address", "name": "onBehalfOf", "type": "address"}
		],
		"name": "repay",
		"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "address", "name": "receiverAddress", "type": "address"},
			{"internalType": "address", "name": "asset", "type": "address"},
			{"internalType": "uint256", "name": "amount", "type": "uint256"},
			{"internalType": "bytes", "name": "params", "type": "bytes"},
			{"internalType": "uint16", "name": "referralCode", "type": "uint16"}
		],
		"name": "flashLoanSimple",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "FLASHLOAN_PREMIUM_TOTAL",
		"outputs": [{"internalType": "uint128", "name": "", "type": "uint128"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

// ERC20ABI is the minimal balance read used for position queries against
// aToken and variable-debt token contracts.
const ERC20ABI = `[
	{
		"inputs": [{"internalType": "address", "name": "account", "type": "address"}],
		"name": "balanceOf",
		"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

// Variable-rate borrowing, the only mode the adapter composes.
var interestRateModeVariable = big.NewInt(2)

// Call is the adapter payload carried on plan ops. Data holds pre-encoded
// calldata when every argument is known at composition time; for ops whose
// amount is an in-flight coin, the executor encodes Method/Args after
// resolving the amount.
type Call struct {
	Target common.Address
	Data   []byte
	Method string
	Args   []any
}
