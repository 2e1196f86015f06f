package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/atmx/scratch-engine/internal/asset"
)

// EventKind discriminates Event variants.
type EventKind string

const (
	EventPurchased EventKind = "purchased"
	EventScratched EventKind = "scratched"
)

// Event is emitted once per card state transition. The variants are
// Purchased and Scratched.
type Event interface {
	Kind() EventKind
	CardID() string
	OwnerID() string
}

// Purchased is emitted when a card is minted to its buyer.
type Purchased struct {
	Owner        string   `json:"owner"`
	Card         string   `json:"card"`
	USDAmount    uint64   `json:"usd_amount"`
	PayoutAsset  asset.ID `json:"payout_asset"`
	PayoutAmount uint64   `json:"payout_amount"`
}

func (Purchased) Kind() EventKind { return EventPurchased }
func (e Purchased) CardID() string { return e.Card }
func (e Purchased) OwnerID() string { return e.Owner }

// Scratched is emitted when a card's settlement is paid.
type Scratched struct {
	Owner        string   `json:"owner"`
	Card         string   `json:"card"`
	USDAmount    uint64   `json:"usd_amount"`
	PayoutAsset  asset.ID `json:"payout_asset"`
	PayoutAmount uint64   `json:"payout_amount"`
}

func (Scratched) Kind() EventKind { return EventScratched }
func (e Scratched) CardID() string { return e.Card }
func (e Scratched) OwnerID() string { return e.Owner }

// EventRecord is the immutable, persisted envelope of an Event.
// Once written, records are never modified or deleted.
type EventRecord struct {
	ID        string          `json:"id" db:"id"`
	Kind      EventKind       `json:"kind" db:"kind"`
	CardID    string          `json:"card_id" db:"card_id"`
	Owner     string          `json:"owner" db:"owner"`
	Payload   json.RawMessage `json:"payload" db:"payload"`
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
}

// NewEventRecord wraps e for storage.
func NewEventRecord(id string, e Event, at time.Time) (EventRecord, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return EventRecord{}, fmt.Errorf("encode %s event: %w", e.Kind(), err)
	}
	return EventRecord{
		ID:        id,
		Kind:      e.Kind(),
		CardID:    e.CardID(),
		Owner:     e.OwnerID(),
		Payload:   payload,
		Timestamp: at,
	}, nil
}

// Event decodes the payload back into its variant.
func (r EventRecord) Event() (Event, error) {
	switch r.Kind {
	case EventPurchased:
		var e Purchased
		if err := json.Unmarshal(r.Payload, &e); err != nil {
			return nil, err
		}
		return e, nil
	case EventScratched:
		var e Scratched
		if err := json.Unmarshal(r.Payload, &e); err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, fmt.Errorf("unknown event kind %q", r.Kind)
	}
}
