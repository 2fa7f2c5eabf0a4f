package sender

import (
	"sync"
	"time"

	"github.com/oftrelay/covertchan/blecodec"
)

// Pacer is a token-bucket limiter, one token per advertisement slot,
// shaped after reports.RateLimiter but simplified to a single bucket
// since a Sender paces its own outbound advertise calls rather than
// admitting requests keyed by caller. It is ambient scheduling policy
// only: the core Sender.Transmit contract has no dwell-time or pacing
// opinion (spec.md §4.3), and wrapping Pacer.Wrap around an
// AdvertiseFunc is entirely the driver program's choice.
type Pacer struct {
	mu        sync.Mutex
	timeNow   func() time.Time
	slotCost  time.Duration
	maxTokens time.Duration
	tokens    time.Duration
	lastTime  time.Time
}

// NewPacer builds a Pacer admitting up to slotsPerSecond advertisement
// slots per second, with burst extra slots available up front.
func NewPacer(slotsPerSecond int, burst int) *Pacer {
	if slotsPerSecond <= 0 {
		slotsPerSecond = 1
	}
	if burst < 0 {
		burst = 0
	}
	slotCost := time.Second / time.Duration(slotsPerSecond)
	return &Pacer{
		timeNow:   time.Now,
		slotCost:  slotCost,
		maxTokens: slotCost * time.Duration(burst+1),
		tokens:    slotCost * time.Duration(burst+1),
		lastTime:  time.Now(),
	}
}

// Wrap returns an AdvertiseFunc that blocks until a slot is available,
// then delegates to advertise. The wrapped call still owns its own
// dwell time; Pacer only governs how often a new one may start.
func (p *Pacer) Wrap(advertise AdvertiseFunc) AdvertiseFunc {
	return func(adv [blecodec.AdvertisementSize]byte, addr [blecodec.AddressSize]byte) error {
		p.wait()
		return advertise(adv, addr)
	}
}

func (p *Pacer) wait() {
	for {
		if p.allow() {
			return
		}
		time.Sleep(p.slotCost)
	}
}

func (p *Pacer) allow() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.timeNow()
	p.tokens += now.Sub(p.lastTime)
	p.lastTime = now
	if p.tokens > p.maxTokens {
		p.tokens = p.maxTokens
	}
	if p.tokens >= p.slotCost {
		p.tokens -= p.slotCost
		return true
	}
	return false
}
