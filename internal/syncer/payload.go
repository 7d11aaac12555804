package syncer

import (
	"encoding/json"

	"github.com/kalambet/focusd/internal/remote"
	"github.com/kalambet/focusd/internal/store"
)

// encodePayload wraps a wire record for durable queueing. The payload is
// the exact JSON the service will eventually receive.
func encodePayload(wire remote.AttentionRecord) (store.QueuedRecord, error) {
	data, err := json.Marshal(wire)
	if err != nil {
		return store.QueuedRecord{}, err
	}
	return store.QueuedRecord{
		ID:          wire.ID,
		Kind:        wire.Kind,
		PayloadJSON: string(data),
	}, nil
}

func decodePayload(q store.QueuedRecord) (remote.AttentionRecord, error) {
	var wire remote.AttentionRecord
	err := json.Unmarshal([]byte(q.PayloadJSON), &wire)
	return wire, err
}
