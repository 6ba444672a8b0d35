package model

import (
	"strings"
)

// Log is a single event log from a transaction receipt.
type Log struct {
	Address  string   `json:"address"`
	Topics   []string `json:"topics"`
	Data     string   `json:"data"`
	LogIndex uint64   `json:"log_index"`
}

// Topic0 returns the log's event signature topic, or "" when absent.
func (l Log) Topic0() string {
	if len(l.Topics) == 0 {
		return ""
	}
	return strings.ToLower(l.Topics[0])
}

// Receipt is the immutable decode input: one transaction plus its
// ordered event logs, as supplied by an external chain-data provider.
type Receipt struct {
	TxHash      string `json:"tx_hash"`
	From        string `json:"from"`
	To          string `json:"to"`
	Input       string `json:"input"`
	BlockNumber uint64 `json:"block_number"`
	Timestamp   uint64 `json:"timestamp"`
	Logs        []Log  `json:"logs"`
}

// Selector returns the leading 4 bytes of input data as lowercase hex
// ("0x" + 8 chars), or "" when the input is too short.
func (r *Receipt) Selector() string {
	input := strings.ToLower(r.Input)
	if len(input) < 10 || !strings.HasPrefix(input, "0x") {
		return ""
	}
	return input[:10]
}
