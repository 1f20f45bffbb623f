package types

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethTypes "github.com/openweb3/web3go/types"
)

// PendingMessage is an unconfirmed external message observed from the
// pending-transaction source, carrying enough data to emulate.
type PendingMessage struct {
	Hash  common.Hash     `json:"hash"`
	From  common.Address  `json:"from"`
	To    *common.Address `json:"to,omitempty"` // nil for contract creation
	Value *hexutil.Big    `json:"value,omitempty"`
	Input hexutil.Bytes   `json:"input,omitempty"`
	Gas   hexutil.Uint64  `json:"gas"`
	Raw   hexutil.Bytes   `json:"raw,omitempty"`
}

// NewPendingMessage converts a pending pool transaction into a message.
func NewPendingMessage(tx *ethTypes.TransactionDetail) PendingMessage {
	msg := PendingMessage{
		Hash:  tx.Hash,
		From:  tx.From,
		To:    tx.To,
		Input: hexutil.Bytes(tx.Input),
		Gas:   hexutil.Uint64(tx.Gas),
	}

	if tx.Value != nil {
		msg.Value = (*hexutil.Big)(tx.Value)
	}

	return msg
}

// TraceID returns the stable trace id for this message.
//
// The message hash is used if present, otherwise the id is derived from
// the raw message bytes. Re-observing the same message always yields the
// same id, which is what makes emulator upserts idempotent.
func (m *PendingMessage) TraceID() common.Hash {
	if m.Hash != (common.Hash{}) {
		return m.Hash
	}
	return DeriveTraceID(m.Raw)
}
