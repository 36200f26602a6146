package features

import "github.com/mbd888/walletrisk/internal/chain"

// defiInteractions classifies each transaction by (contract, method) against
// the DEX, liquidity and yield tables.
func (e *Extractor) defiInteractions(v *Vector, txs []chain.Transaction) {
	if len(txs) == 0 {
		return
	}

	protocols := make(map[string]struct{})
	classified := 0
	for _, tx := range txs {
		target := protocolTarget(tx)
		switch e.index.classify(target, tx.MethodID) {
		case ClassDEX:
			v.DEXInteractions++
		case ClassLiquidity:
			v.LiquidityInteractions++
		case ClassYield:
			v.YieldInteractions++
		default:
			continue
		}
		classified++
		if target != "" {
			protocols[target] = struct{}{}
		}
	}

	v.UniqueProtocols = len(protocols)
	v.DeFiActivityRatio = ratio(classified, len(txs))
}

// protocolTarget is the contract a transaction interacted with: the recorded
// contract address, or the recipient of a call that carries a selector.
func protocolTarget(tx chain.Transaction) string {
	if tx.ContractAddress != "" {
		return tx.ContractAddress
	}
	if tx.MethodID != "" {
		return tx.To
	}
	return ""
}
