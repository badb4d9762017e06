package asset

import "github.com/ethereum/go-ethereum/common"

// Chain IDs
const (
	ChainIDEthereum = 1
	ChainIDSepolia  = 11155111
	ChainIDArbitrum = 42161
	ChainIDOptimism = 10
	ChainIDBase     = 8453
)

// Well-known token addresses on Ethereum Mainnet
var (
	AddrUSDCEthereum = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	AddrDAIEthereum  = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	AddrWETHEthereum = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	AddrWBTCEthereum = common.HexToAddress("0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599")
	AddrWSTETHEther  = common.HexToAddress("0x7f39C581F595B53c5cb19bD0b3f8dA6c935E2Ca0")
)

// Well-known IDs
var (
	IDEthereumETH    = NewNativeID(ChainIDEthereum)
	IDEthereumUSDC   = NewTokenID(ChainIDEthereum, AddrUSDCEthereum)
	IDEthereumDAI    = NewTokenID(ChainIDEthereum, AddrDAIEthereum)
	IDEthereumWETH   = NewTokenID(ChainIDEthereum, AddrWETHEthereum)
	IDEthereumWBTC   = NewTokenID(ChainIDEthereum, AddrWBTCEthereum)
	IDEthereumWSTETH = NewTokenID(ChainIDEthereum, AddrWSTETHEther)
)

// Well-known Assets (pre-created instances)
var (
	ETH    = NewWithName(IDEthereumETH, "ETH", "Ethereum", 18)
	USDC   = NewWithName(IDEthereumUSDC, "USDC", "USD Coin", 6)
	DAI    = NewWithName(IDEthereumDAI, "DAI", "Dai Stablecoin", 18)
	WETH   = NewWithName(IDEthereumWETH, "WETH", "Wrapped Ether", 18)
	WBTC   = NewWithName(IDEthereumWBTC, "WBTC", "Wrapped Bitcoin", 8)
	WSTETH = NewWithName(IDEthereumWSTETH, "wstETH", "Wrapped Staked Ether", 18)
)

// DefaultRegistry returns a registry pre-populated with well-known assets.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(ETH)
	r.Register(USDC)
	r.Register(DAI)
	r.Register(WETH)
	r.Register(WBTC)
	r.Register(WSTETH)
	return r
}

// MustNewToken creates an ERC-20 token asset, for registering custom tokens
// from configuration.
func MustNewToken(chainID uint64, address common.Address, symbol, name string, decimals uint8) *Asset {
	return NewWithName(NewTokenID(chainID, address), symbol, name, decimals)
}

// MustNewNative creates a native coin asset.
func MustNewNative(chainID uint64, symbol, name string, decimals uint8) *Asset {
	return NewWithName(NewNativeID(chainID), symbol, name, decimals)
}
