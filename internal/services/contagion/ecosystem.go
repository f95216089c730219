package contagion

import (
	"sort"
	"strings"
)

// Chain taxonomy used for layer-2 boosts, ecosystem families and exposure attenuation.
var chainFamily = map[string]string{
	"ethereum": "ethereum",
	"arbitrum": "ethereum",
	"optimism": "ethereum",
	"base":     "ethereum",
	"polygon":  "ethereum",
	"zksync":   "ethereum",
	"starknet": "ethereum",
	"linea":    "ethereum",
	"scroll":   "ethereum",
	"blast":    "ethereum",
	"mantle":   "ethereum",

	"solana": "solana",

	"cosmos":    "cosmos",
	"osmosis":   "cosmos",
	"injective": "cosmos",
	"sei":       "cosmos",

	"bitcoin":   "bitcoin",
	"stacks":    "bitcoin",
	"lightning": "bitcoin",

	"bsc":   "bnb",
	"opbnb": "bnb",

	"avalanche": "avalanche",
}

var layer2Chains = map[string]bool{
	"arbitrum": true,
	"optimism": true,
	"base":     true,
	"polygon":  true,
	"zksync":   true,
	"starknet": true,
	"linea":    true,
	"scroll":   true,
	"blast":    true,
	"mantle":   true,
	"opbnb":    true,
	"stacks":   true,
}

// relatedSectorPairs lists sector pairs whose rotations tend to resolve quickly.
var relatedSectorPairs = [][2]string{
	{"defi", "dex"},
	{"defi", "lending"},
	{"defi", "layer2"},
	{"defi", "oracle"},
	{"defi", "rwa"},
	{"layer1", "layer2"},
	{"gaming", "metaverse"},
	{"gaming", "nft"},
	{"nft", "metaverse"},
	{"meme", "social"},
	{"ai", "depin"},
	{"ai", "data"},
}

var relatedSectors = func() map[[2]string]bool {
	m := make(map[[2]string]bool, len(relatedSectorPairs)*2)
	for _, p := range relatedSectorPairs {
		m[p] = true
		m[[2]string{p[1], p[0]}] = true
	}
	return m
}()

func normalize(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func isLayer2(chain string) bool { return layer2Chains[normalize(chain)] }

// sameFamily reports whether both chains are known members of one ecosystem.
func sameFamily(a, b string) bool {
	fa, ok := chainFamily[normalize(a)]
	if !ok {
		return false
	}
	fb, ok := chainFamily[normalize(b)]
	return ok && fa == fb
}

// crossChain reports whether both chains are known and differ.
func crossChain(a, b string) bool {
	a, b = normalize(a), normalize(b)
	return a != "" && b != "" && a != b
}

func sameChain(a, b string) bool {
	a = normalize(a)
	return a != "" && a == normalize(b)
}

// relatedChains returns the other members of chain's family, sorted.
func relatedChains(chain string) []string {
	chain = normalize(chain)
	fam, ok := chainFamily[chain]
	if !ok {
		return nil
	}
	var out []string
	for c, f := range chainFamily {
		if f == fam && c != chain {
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}

func sectorsRelated(a, b string) bool {
	return relatedSectors[[2]string{normalize(a), normalize(b)}]
}
