package symbols

import "strings"

// Venue names as used on the command line and in metrics labels.
const (
	Bybit   = "bybit"
	Binance = "binance"
)

// aliases maps a canonical symbol to the spelling a venue uses in archive paths.
var aliases = map[string]map[string]string{
	Binance: {
		"BONKUSDT": "1000BONKUSDT",
		"PEPEUSDT": "1000PEPEUSDT",
		"SHIBUSDT": "1000SHIBUSDT",
	},
	Bybit: {
		"BONKUSDT": "1000BONKUSDT",
		"PEPEUSDT": "1000PEPEUSDT",
		"SHIBUSDT": "SHIB1000USDT",
	},
}

// Normalize converts a venue symbol to the canonical stored form:
// uppercase, no separators, multiplier prefixes removed.
// Example: bybit "shib1000-usdt" -> "SHIBUSDT".
func Normalize(venue, sym string) string {
	sym = strings.ToUpper(strings.TrimSpace(sym))
	sym = strings.NewReplacer("-", "", "/", "", "_", "").Replace(sym)
	for canonical, spelled := range aliases[strings.ToLower(venue)] {
		if sym == spelled {
			return canonical
		}
	}
	return sym
}

// ForVenue returns the spelling venue uses for a canonical symbol.
func ForVenue(venue, sym string) string {
	canonical := Normalize(venue, sym)
	if spelled, ok := aliases[strings.ToLower(venue)][canonical]; ok {
		return spelled
	}
	return canonical
}

// NormalizeAll normalizes a list, dropping blanks and duplicates while
// keeping the first-seen order.
func NormalizeAll(venue string, syms []string) []string {
	seen := make(map[string]struct{}, len(syms))
	out := make([]string, 0, len(syms))
	for _, s := range syms {
		n := Normalize(venue, s)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
