package store

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Pebble key schema. Prefix-based so all positions of a market can be range
// scanned, with the market symbol scoping every record.
const (
	prefixPool     = "pool:"
	prefixMarket   = "mkt:"
	prefixPosition = "pos:"
	prefixFeed     = "feed:"
)

// poolKey returns the key for a market's pool balance.
// Format: "pool:{symbol}"
func poolKey(symbol string) []byte {
	return []byte(prefixPool + symbol)
}

// marketKey returns the key for market parameters.
// Format: "mkt:{symbol}"
func marketKey(symbol string) []byte {
	return []byte(prefixMarket + symbol)
}

// positionKey returns the key for one account's position.
// Format: "pos:{symbol}:{address}"
func positionKey(symbol string, owner common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixPosition, symbol, owner.Hex()))
}

// positionPrefix returns the prefix covering all positions of a market.
// Format: "pos:{symbol}:"
func positionPrefix(symbol string) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixPosition, symbol))
}

// feedKey returns the key for a market's price feed.
// Format: "feed:{symbol}"
func feedKey(symbol string) []byte {
	return []byte(prefixFeed + symbol)
}

// keyUpperBound returns the exclusive upper bound for a prefix scan.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
