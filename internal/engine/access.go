package engine

import "github.com/resolvd/resolvd/internal/domain"

// IsAuthority reports whether actor is the pool's resolution authority.
// Authority identities are plain values compared by equality; delegation and
// multi-signature schemes are layered above the engine if needed.
func IsAuthority(pool domain.Pool, actor string) bool {
	return actor != "" && actor == pool.Authority
}

// IsParticipant reports whether actor has at least one stake in the pool.
func (p *Pool) IsParticipant(actor string) bool {
	return len(p.ledger.stakesOf(actor)) > 0
}
