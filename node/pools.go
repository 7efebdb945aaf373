// Package node implements the supervisor of §4.10: peer candidate pools,
// the monitor loop, and the sync-phase driver, plus apply_block/rollback
// (§4.6) and the persisted node state (§6).
package node

import (
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// §4.8's TTLs and cleanup intervals.
const (
	unusedPeerCandidateTTL        = 30 * time.Minute
	unusedPeerCandidateCleanupInt = 60 * time.Minute
	recentlyAttemptedTTL          = 30 * time.Second
	recentlyAttemptedCleanupInt   = 1 * time.Minute
	healthyPeerTTL                = 24 * time.Hour
	bannedPeerTTL                 = 3 * time.Hour
)

// HealthyPeerInfo is the value stored for a healthy peer (§4.8).
type HealthyPeerInfo struct {
	LastSeen     time.Time
	Capabilities uint32
}

// CandidatePools holds the four keyed, TTL'd address sets of §4.8, each
// backed by a jellydator/ttlcache instance so expiry is handled without a
// manual sweep goroutine per set.
type CandidatePools struct {
	Unused            *ttlcache.Cache[string, time.Time]
	CurrentlyUsed      map[string]struct{}
	RecentlyAttempted *ttlcache.Cache[string, time.Time]
	Healthy            *ttlcache.Cache[string, HealthyPeerInfo]
	Banned             *ttlcache.Cache[string, time.Time]
}

// NewCandidatePools builds the four pools and starts their background
// eviction loops. Callers must call Stop on shutdown.
func NewCandidatePools() *CandidatePools {
	p := &CandidatePools{
		Unused:            ttlcache.New[string, time.Time](ttlcache.WithTTL[string, time.Time](unusedPeerCandidateTTL)),
		CurrentlyUsed:      make(map[string]struct{}),
		RecentlyAttempted: ttlcache.New[string, time.Time](ttlcache.WithTTL[string, time.Time](recentlyAttemptedTTL)),
		Healthy:            ttlcache.New[string, HealthyPeerInfo](ttlcache.WithTTL[string, HealthyPeerInfo](healthyPeerTTL)),
		Banned:             ttlcache.New[string, time.Time](ttlcache.WithTTL[string, time.Time](bannedPeerTTL)),
	}
	go p.Unused.Start()
	go p.RecentlyAttempted.Start()
	go p.Healthy.Start()
	go p.Banned.Start()
	return p
}

// Stop halts every pool's background eviction loop.
func (p *CandidatePools) Stop() {
	p.Unused.Stop()
	p.RecentlyAttempted.Stop()
	p.Healthy.Stop()
	p.Banned.Stop()
}

// AddUnused registers a candidate address seen via PeerAddresses or a DNS
// seed, unless it's already banned, healthy, or in use.
func (p *CandidatePools) AddUnused(address string) {
	if p.Banned.Get(address) != nil {
		return
	}
	if p.Healthy.Get(address) != nil {
		return
	}
	if _, inUse := p.CurrentlyUsed[address]; inUse {
		return
	}
	p.Unused.Set(address, time.Now(), ttlcache.DefaultTTL)
}

// DrainUnused pops up to n unused candidates not already being attempted,
// marking them as currently used.
func (p *CandidatePools) DrainUnused(n int) []string {
	var out []string
	for _, item := range p.Unused.Items() {
		if len(out) >= n {
			break
		}
		addr := item.Key()
		if p.RecentlyAttempted.Get(addr) != nil {
			continue
		}
		out = append(out, addr)
		p.CurrentlyUsed[addr] = struct{}{}
		p.Unused.Delete(addr)
		p.RecentlyAttempted.Set(addr, time.Now(), ttlcache.DefaultTTL)
	}
	return out
}

// MarkHealthy promotes an address out of currently-used into the healthy
// set once its handshake completes (§4.9's ConnectedAndHealthy).
func (p *CandidatePools) MarkHealthy(address string, capabilities uint32) {
	delete(p.CurrentlyUsed, address)
	p.Healthy.Set(address, HealthyPeerInfo{LastSeen: time.Now(), Capabilities: capabilities}, ttlcache.DefaultTTL)
}

// MarkDisconnected releases an address back to unused so it can be
// retried later, unless it was banned instead.
func (p *CandidatePools) MarkDisconnected(address string) {
	delete(p.CurrentlyUsed, address)
	p.Healthy.Delete(address)
	if p.Banned.Get(address) == nil {
		p.AddUnused(address)
	}
}

// Ban moves an address into the banned set and evicts it from every
// other set.
func (p *CandidatePools) Ban(address string) {
	delete(p.CurrentlyUsed, address)
	p.Healthy.Delete(address)
	p.Unused.Delete(address)
	p.RecentlyAttempted.Delete(address)
	p.Banned.Set(address, time.Now(), ttlcache.DefaultTTL)
}

// HealthyCount returns the number of peers in the healthy set.
func (p *CandidatePools) HealthyCount() int {
	return p.Healthy.Len()
}
