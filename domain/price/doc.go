// Package price implements the canonical fixed-point price used by the
// order book. Every price stored or compared inside the engine is an int64
// scaled to CanonicalScale fractional digits; conversion from a caller's
// (raw, scale) pair happens exactly once, at admission, through Normalize.
//
// The package is dependency-free apart from shopspring/decimal, which is
// only used at the edges to format prices for humans and to parse decimal
// strings typed on the command line.
package price
