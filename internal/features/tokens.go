package features

import "github.com/mbd888/walletrisk/internal/chain"

// tokenHoldings fills the token-holding family from transfer counts per token.
func (e *Extractor) tokenHoldings(v *Vector, transfers []chain.TokenTransfer) {
	total := len(transfers)
	if total == 0 {
		return
	}

	perToken := make(map[string]int)
	tokenType := make(map[string]chain.TokenType)
	stable := 0
	for _, tr := range transfers {
		perToken[tr.TokenAddress]++
		if _, ok := tokenType[tr.TokenAddress]; !ok {
			tokenType[tr.TokenAddress] = tr.TokenType
		}
		if e.index.isStablecoin(tr.TokenAddress) {
			stable++
		}
	}

	tokens := sortedKeys(perToken)
	counts := make([]float64, len(tokens))
	for i, tok := range tokens {
		counts[i] = float64(perToken[tok])
		switch tokenType[tok] {
		case chain.TokenERC20:
			v.ERC20Count++
		case chain.TokenERC721:
			v.ERC721Count++
		}
	}

	v.UniqueTokens = len(tokens)
	v.TokenDiversity = entropy(counts)
	if len(tokens) == 1 {
		v.TokenConcentration = 1.0
	} else {
		v.TokenConcentration = clamp01(gini(counts))
	}
	v.PortfolioStability = ratio(len(tokens), total)
	v.StablecoinRatio = ratio(stable, total)
}
