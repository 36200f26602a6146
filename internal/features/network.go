package features

import "github.com/mbd888/walletrisk/internal/chain"

type edge struct{ from, to string }

// network fills counterparty, clustering, density and reciprocity features.
func (e *Extractor) network(v *Vector, subject string, txs []chain.Transaction) {
	if len(txs) == 0 {
		return
	}

	contracts := make(map[string]struct{})
	counterparties := make(map[string]int)
	nodes := make(map[string]struct{})
	edges := make(map[edge]struct{})

	for _, tx := range txs {
		if tx.ContractAddress != "" {
			contracts[tx.ContractAddress] = struct{}{}
		}
		if cp := counterparty(subject, tx); cp != "" {
			counterparties[cp]++
		}
		if tx.From != "" {
			nodes[tx.From] = struct{}{}
		}
		if tx.To != "" {
			nodes[tx.To] = struct{}{}
		}
		if tx.From != "" && tx.To != "" && tx.From != tx.To {
			edges[edge{tx.From, tx.To}] = struct{}{}
		}
	}

	v.UniqueContracts = len(contracts)
	v.UniqueCounterparties = len(counterparties)

	repeated := 0
	for _, c := range counterparties {
		if c > 1 {
			repeated++
		}
	}
	v.AddressClusteringScore = ratio(repeated, len(counterparties))

	n := len(nodes)
	if n >= 2 {
		v.GraphDensity = ratio(len(edges), n*(n-1))
	}

	reciprocal := 0
	for ed := range edges {
		if _, ok := edges[edge{ed.to, ed.from}]; ok {
			reciprocal++
		}
	}
	v.Reciprocity = ratio(reciprocal, len(edges))
}

// counterparty returns the other side of a transaction relative to subject.
func counterparty(subject string, tx chain.Transaction) string {
	var cp string
	switch {
	case tx.From == subject:
		cp = tx.To
	case tx.To == subject:
		cp = tx.From
	default:
		cp = tx.From
	}
	if cp == subject {
		return ""
	}
	return cp
}
