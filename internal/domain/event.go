package domain

import "time"

// Event channel names used on the signal bus and mirrored to WebSocket
// clients.
const (
	ChannelPool       = "ch:pool"
	ChannelStake      = "ch:stake"
	ChannelSettlement = "ch:settlement"
)

// Event types emitted by the pool service.
const (
	EventPoolCreated    = "pool.created"
	EventPoolLocked     = "pool.locked"
	EventPoolResolved   = "pool.resolved"
	EventPoolCancelled  = "pool.cancelled"
	EventStakePlaced    = "stake.placed"
	EventStakeWithdrawn = "stake.withdrawn"
	EventStakeClaimed   = "stake.claimed"
	EventStakeRefunded  = "stake.refunded"
)

// Event is the JSON payload published for every successful mutation. Amount
// is the amount moved (stake delta, payout, or refund) where applicable;
// Option is the staked or winning option where applicable.
type Event struct {
	Type        string    `json:"type"`
	PoolID      string    `json:"pool_id"`
	Participant string    `json:"participant,omitempty"`
	Option      string    `json:"option,omitempty"`
	Amount      int64     `json:"amount,omitempty"`
	At          time.Time `json:"at"`
}
