package amqp

import (
	"encoding/json"
	"errors"

	"pockets/internal/core"
)

// Ledger events carry only ids and the ledger version; consumers reload
// the ledger to see the resulting state.

func EncodeLedgerEvent(ev core.LedgerEvent) ([]byte, error) {
	return json.Marshal(ev)
}

func DecodeLedgerEvent(data []byte) (core.LedgerEvent, error) {
	var ev core.LedgerEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return core.LedgerEvent{}, err
	}
	if ev.Kind == "" {
		return core.LedgerEvent{}, errors.New("ledger event without kind")
	}
	return ev, nil
}

func EncodeBillReminder(r core.BillReminder) ([]byte, error) {
	return json.Marshal(r)
}
