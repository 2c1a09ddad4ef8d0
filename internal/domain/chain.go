package domain

import "strings"

// ChainFamily distinguishes the two incompatible account models the
// engine dispatches to. EVM chains use nonce/gas accounts; TRON uses
// energy/bandwidth accounts and has no atomic multi-transfer primitive.
type ChainFamily string

const (
	FamilyEVM  ChainFamily = "evm"
	FamilyTron ChainFamily = "tron"
)

// TokenInfo describes a token deployed on a specific chain.
type TokenInfo struct {
	Symbol           string
	Address          string // contract address, empty for the native token
	Decimals         int32
	BridgeCompatible bool // eligible for the approve-then-transfer batch path
}

// ChainInfo describes a supported chain.
type ChainInfo struct {
	ChainID               uint64
	Name                  string
	Family                ChainFamily
	NativeToken           string
	SupportsBatchTransfer bool // single-signature batch capability flag
	Tokens                map[string]TokenInfo
}

// Slug returns the lowercase chain name used as the ledger chain key.
func (c ChainInfo) Slug() string {
	return strings.ToLower(strings.ReplaceAll(c.Name, " ", "-"))
}

// Registry holds the set of chains the engine can dispatch to.
type Registry struct {
	chains map[uint64]ChainInfo
}

// NewRegistry builds a registry from the given chains.
func NewRegistry(chains []ChainInfo) *Registry {
	m := make(map[uint64]ChainInfo, len(chains))
	for _, c := range chains {
		m[c.ChainID] = c
	}
	return &Registry{chains: m}
}

// Chain looks up a chain by id.
func (r *Registry) Chain(chainID uint64) (ChainInfo, bool) {
	c, ok := r.chains[chainID]
	return c, ok
}

// Token looks up a token by chain id and symbol.
func (r *Registry) Token(chainID uint64, symbol string) (TokenInfo, bool) {
	c, ok := r.chains[chainID]
	if !ok {
		return TokenInfo{}, false
	}
	t, ok := c.Tokens[strings.ToUpper(symbol)]
	return t, ok
}

// DefaultRegistry returns the production chain set.
//
// Only Base carries the single-signature batch-transfer capability; the
// other EVM chains fall back to sequential transfers. TRON supports
// exactly one token in this domain (USDT) and is always sequential.
func DefaultRegistry() *Registry {
	usdc6 := TokenInfo{Symbol: "USDC", Decimals: 6, BridgeCompatible: true}
	usdt6 := TokenInfo{Symbol: "USDT", Decimals: 6, BridgeCompatible: true}
	dai18 := TokenInfo{Symbol: "DAI", Decimals: 18, BridgeCompatible: false}

	return NewRegistry([]ChainInfo{
		{
			ChainID: 1, Name: "Ethereum", Family: FamilyEVM, NativeToken: "ETH",
			Tokens: map[string]TokenInfo{
				"USDC": withAddr(usdc6, "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"),
				"USDT": withAddr(usdt6, "0xdAC17F958D2ee523a2206206994597C13D831ec7"),
				"DAI":  withAddr(dai18, "0x6B175474E89094C44Da98b954EedeAC495271d0F"),
				"ETH":  {Symbol: "ETH", Decimals: 18},
			},
		},
		{
			ChainID: 137, Name: "Polygon", Family: FamilyEVM, NativeToken: "MATIC",
			Tokens: map[string]TokenInfo{
				"USDC":  withAddr(usdc6, "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359"),
				"USDT":  withAddr(usdt6, "0xc2132D05D31c914a87C6611C10748AEb04B58e8F"),
				"MATIC": {Symbol: "MATIC", Decimals: 18},
			},
		},
		{
			ChainID: 8453, Name: "Base", Family: FamilyEVM, NativeToken: "ETH",
			SupportsBatchTransfer: true,
			Tokens: map[string]TokenInfo{
				"USDC": withAddr(usdc6, "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"),
				"ETH":  {Symbol: "ETH", Decimals: 18},
			},
		},
		{
			ChainID: 42161, Name: "Arbitrum", Family: FamilyEVM, NativeToken: "ETH",
			Tokens: map[string]TokenInfo{
				"USDC": withAddr(usdc6, "0xaf88d065e77c8cC2239327C5EDb3A432268e5831"),
				"USDT": withAddr(usdt6, "0xFd086bC7CD5C481DCC9C85ebE478A1C0b69FCbb9"),
				"ETH":  {Symbol: "ETH", Decimals: 18},
			},
		},
		{
			ChainID: 10, Name: "Optimism", Family: FamilyEVM, NativeToken: "ETH",
			Tokens: map[string]TokenInfo{
				"USDC": withAddr(usdc6, "0x0b2C639c533813f4Aa9D7837CAf62653d097Ff85"),
				"ETH":  {Symbol: "ETH", Decimals: 18},
			},
		},
		{
			ChainID: 728126428, Name: "Tron", Family: FamilyTron, NativeToken: "TRX",
			Tokens: map[string]TokenInfo{
				"USDT": withAddr(usdt6, "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"),
			},
		},
	})
}

func withAddr(t TokenInfo, addr string) TokenInfo {
	t.Address = addr
	return t
}
