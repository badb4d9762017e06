package feed

import (
	"encoding/json"
	"strings"
)

// streamEvent wraps every combined-stream message.
type streamEvent struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// miniTickerEvent is the per-symbol rolling ticker payload.
type miniTickerEvent struct {
	EventType string `json:"e"` // "24hrMiniTicker"
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Close     string `json:"c"` // latest price
}

// wsRequest is a stream management request.
type wsRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params,omitempty"`
	ID     int64    `json:"id"`
}

// wsResponse acknowledges a stream management request.
type wsResponse struct {
	Result json.RawMessage `json:"result"`
	ID     int64           `json:"id"`
}

// tickerResponse is the REST ticker payload used as fallback.
type tickerResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// MiniTickerStream returns the stream name for a symbol.
func MiniTickerStream(symbol string) string {
	return strings.ToLower(symbol) + "@miniTicker"
}
