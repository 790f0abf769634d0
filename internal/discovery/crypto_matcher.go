package discovery

import "strings"

// cryptoAliases maps a canonical symbol to every alias that should be
// treated as naming the same asset in free-text market titles.
var cryptoAliases = map[string][]string{
	"BTC":   {"bitcoin", "btc", "xbt", "satoshi"},
	"ETH":   {"ethereum", "eth", "ether"},
	"SOL":   {"solana", "sol"},
	"XRP":   {"ripple", "xrp"},
	"DOGE":  {"dogecoin", "doge", "shibe"},
	"ADA":   {"cardano", "ada"},
	"AVAX":  {"avalanche", "avax"},
	"DOT":   {"polkadot", "dot"},
	"MATIC": {"polygon", "matic", "pol"},
	"LINK":  {"chainlink", "link"},
	"UNI":   {"uniswap", "uni"},
	"ATOM":  {"cosmos", "atom"},
	"LTC":   {"litecoin", "ltc"},
	"SHIB":  {"shiba", "shibainu", "shib"},
	"NEAR":  {"near", "near protocol"},
	"APT":   {"aptos", "apt"},
	"ARB":   {"arbitrum", "arb"},
	"OP":    {"optimism", "op"},
}

// govtDOGEKeywords flags market text that is about the Department of
// Government Efficiency rather than the Dogecoin cryptocurrency.
var govtDOGEKeywords = []string{
	"federal spending",
	"government spending",
	"federal budget",
	"government efficiency",
	"dept of government",
	"department of government",
	"elon and doge",
	"musk and doge",
	"doge cut",
	"doge save",
	"doge reduce",
	"doge slash",
	"billion in spending",
	"trillion in spending",
	"executive order",
	"white house",
	"trump admin",
	"vivek",
	"ramaswamy",
}

// CryptoMatcher matches venue market titles against a canonical crypto
// asset symbol.
type CryptoMatcher struct{}

func NewCryptoMatcher() *CryptoMatcher { return &CryptoMatcher{} }

func (m *CryptoMatcher) Name() string { return "crypto" }

// Match decides whether text names symbol (e.g. "BTC"), trying, in priority
// order: exact symbol word match, alias word match, alias substring match
// (aliases of at least 4 characters only, to avoid short aliases like "op"
// or "uni" matching inside unrelated words), reverse canonical-symbol word
// match, and cross-alias match via the canonical symbol.
func (m *CryptoMatcher) Match(symbol, text string) MatchResult {
	symbolUpper := strings.ToUpper(symbol)
	lower := strings.ToLower(text)

	if symbolUpper == "DOGE" && isGovernmentDOGEMarket(lower) {
		return noMatch("text matches Department of Government Efficiency keyword list, not Dogecoin")
	}

	if containsWord(lower, strings.ToLower(symbolUpper)) {
		return MatchResult{Confidence: ConfidenceExact, Score: 1.0, Reason: "exact symbol word match"}
	}

	aliases := cryptoAliases[symbolUpper]
	for _, alias := range aliases {
		if containsWord(lower, alias) {
			return MatchResult{Confidence: ConfidenceHigh, Score: 0.95, Reason: "alias word match: " + alias}
		}
	}
	for _, alias := range aliases {
		if len(alias) >= 4 && strings.Contains(lower, alias) {
			return MatchResult{Confidence: ConfidenceMedium, Score: 0.80, Reason: "alias substring match: " + alias}
		}
	}

	// symbol itself may have been passed in as an alias name (e.g. the
	// caller matched on "bitcoin" directly); resolve it to its canonical
	// symbol and retry the word match at a slightly lower confidence.
	if canonical, ok := canonicalSymbol(symbolUpper); ok && canonical != symbolUpper {
		if containsWord(lower, strings.ToLower(canonical)) {
			return MatchResult{Confidence: ConfidenceHigh, Score: 0.90, Reason: "reverse canonical symbol match: " + canonical}
		}
		for _, alias := range cryptoAliases[canonical] {
			if containsWord(lower, alias) {
				return MatchResult{Confidence: ConfidenceMedium, Score: 0.85, Reason: "cross-alias match via canonical " + canonical}
			}
		}
	}

	return noMatch("no symbol or alias match for " + symbolUpper)
}

// canonicalSymbol resolves an alias (possibly itself already a canonical
// symbol) back to its canonical symbol.
func canonicalSymbol(name string) (string, bool) {
	upper := strings.ToUpper(name)
	if _, ok := cryptoAliases[upper]; ok {
		return upper, true
	}
	lower := strings.ToLower(name)
	for symbol, aliases := range cryptoAliases {
		for _, alias := range aliases {
			if alias == lower {
				return symbol, true
			}
		}
	}
	return "", false
}

// containsWord reports whether word appears in text as a whole token, split
// on non-alphanumeric boundaries (so "$BTC", "(BTC)", "BTC," all match but
// "SUBTC" does not).
func containsWord(text, word string) bool {
	for _, token := range strings.FieldsFunc(text, func(r rune) bool {
		return !isAlphaNumeric(r)
	}) {
		if token == word {
			return true
		}
	}
	return false
}

func isAlphaNumeric(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// isGovernmentDOGEMarket reports whether lowercased text matches the fixed
// Department of Government Efficiency keyword list, meaning a DOGE symbol
// match here is about Elon Musk's cost-cutting initiative, not Dogecoin.
func isGovernmentDOGEMarket(lower string) bool {
	for _, kw := range govtDOGEKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
