// Package models defines data structures for stockfetch
package models

import "strings"

// Query identifies one fetch: a ticker and a date range.
// Dates are passed through verbatim to the provider.
type Query struct {
	Ticker string `json:"ticker"`
	Start  string `json:"start"`
	End    string `json:"end"`
}

// Ready reports whether the query may be fetched. An empty end date halts processing.
func (q Query) Ready() bool {
	return q.End != ""
}

// Key returns the cache identity of the query.
func (q Query) Key() string {
	return strings.Join([]string{q.Ticker, q.Start, q.End}, "|")
}
