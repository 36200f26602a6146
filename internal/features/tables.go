package features

import "strings"

// DeFi interaction classes.
const (
	ClassDEX       = "dex"
	ClassLiquidity = "liquidity"
	ClassYield     = "yield"
)

// Tables holds the versioned lookup sets used during extraction. Values are
// matched case-insensitively; method ids are 4-byte selectors with 0x prefix.
type Tables struct {
	Version           string            `koanf:"version" json:"version"`
	DEXMethods        []string          `koanf:"dex_methods" json:"dexMethods"`
	LiquidityMethods  []string          `koanf:"liquidity_methods" json:"liquidityMethods"`
	YieldMethods      []string          `koanf:"yield_methods" json:"yieldMethods"`
	ProtocolContracts map[string]string `koanf:"protocol_contracts" json:"protocolContracts"` // address -> class
	Stablecoins       []string          `koanf:"stablecoins" json:"stablecoins"`
}

// DefaultTables returns the built-in Ethereum mainnet / Base tables.
func DefaultTables() Tables {
	return Tables{
		Version: "2024.1",
		DEXMethods: []string{
			"0x38ed1739", // swapExactTokensForTokens
			"0x7ff36ab5", // swapExactETHForTokens
			"0x18cbafe5", // swapExactTokensForETH
			"0x8803dbee", // swapTokensForExactTokens
			"0xfb3bdb41", // swapETHForExactTokens
			"0x414bf389", // exactInputSingle
			"0xc04b8d59", // exactInput
			"0x5ae401dc", // multicall(uint256,bytes[])
			"0x3593564c", // execute (universal router)
			"0x12aa3caf", // 1inch swap
		},
		LiquidityMethods: []string{
			"0xe8e33700", // addLiquidity
			"0xf305d719", // addLiquidityETH
			"0xbaa2abde", // removeLiquidity
			"0x02751cec", // removeLiquidityETH
			"0x88316456", // mint (position manager)
			"0x219f5d17", // increaseLiquidity
			"0x0c49ccbe", // decreaseLiquidity
		},
		YieldMethods: []string{
			"0xb6b55f25", // deposit(uint256)
			"0x2e1a7d4d", // withdraw(uint256)
			"0xa694fc3a", // stake(uint256)
			"0x2e17de78", // unstake(uint256)
			"0x3d18b912", // getReward
			"0xe9fad8ee", // exit
			"0x4e71d92d", // claim
			"0x617ba037", // supply (aave v3)
			"0x69328dec", // withdraw (aave v3)
		},
		ProtocolContracts: map[string]string{
			"0x7a250d5630b4cf539739df2c5dacb4c659f2488d": ClassDEX,       // uniswap v2 router
			"0xe592427a0aece92de3edee1f18e0157c05861564": ClassDEX,       // uniswap v3 router
			"0x1111111254eeb25477b68fb85ed929f73a960582": ClassDEX,       // 1inch v5
			"0xc36442b4a4522e871399cd717abdd847ab11fe88": ClassLiquidity, // uniswap v3 positions
			"0x87870bca3f3fd6335c3f4ce8392d69350b4fa4e2": ClassYield,     // aave v3 pool
			"0xae7ab96520de3a18e5e111b5eaab095312d7fe84": ClassYield,     // lido steth
		},
		Stablecoins: []string{
			"0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", // USDC
			"0xdac17f958d2ee523a2206206994597c13d831ec7", // USDT
			"0x6b175474e89094c44da98b954eedeac495271d0f", // DAI
			"0x4fabb145d64652a948d72533023f6e7a623c7c53", // BUSD
			"0x853d955acef822db058eb8505911ed77f175b99e", // FRAX
			"0x0000000000085d4780b73119b644ae5ecd22b376", // TUSD
			"0x8e870d67f660d95d5be530380d0ec0bd388289e1", // USDP
			"0x833589fcd6edb6e08f4c7c32d4f71b54bda02913", // USDC (base)
		},
	}
}

type tableIndex struct {
	methods     map[string]string
	protocols   map[string]string
	stablecoins map[string]struct{}
}

func (t Tables) index() tableIndex {
	idx := tableIndex{
		methods:     make(map[string]string),
		protocols:   make(map[string]string),
		stablecoins: make(map[string]struct{}),
	}
	// Later classes never override earlier ones for a shared selector.
	for _, group := range []struct {
		class   string
		methods []string
	}{
		{ClassDEX, t.DEXMethods},
		{ClassLiquidity, t.LiquidityMethods},
		{ClassYield, t.YieldMethods},
	} {
		for _, m := range group.methods {
			m = strings.ToLower(m)
			if _, ok := idx.methods[m]; !ok {
				idx.methods[m] = group.class
			}
		}
	}
	for addr, class := range t.ProtocolContracts {
		idx.protocols[strings.ToLower(addr)] = strings.ToLower(class)
	}
	for _, s := range t.Stablecoins {
		idx.stablecoins[strings.ToLower(s)] = struct{}{}
	}
	return idx
}

// classify returns the DeFi class for a call, or "" when unclassified.
// The method selector takes precedence over the target contract.
func (idx tableIndex) classify(contract, methodID string) string {
	if class, ok := idx.methods[methodID]; ok && methodID != "" {
		return class
	}
	if contract == "" {
		return ""
	}
	return idx.protocols[contract]
}

func (idx tableIndex) isStablecoin(token string) bool {
	_, ok := idx.stablecoins[token]
	return ok
}
