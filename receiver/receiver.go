// Package receiver implements the inbound half of spec.md §4.4:
// windowed key derivation, batched report fetch, majority-vote
// decoding, and the gap-stop termination rule.
package receiver

import (
	"context"
	"fmt"
	"iter"
	"sort"

	"github.com/oftrelay/covertchan/channel"
	"github.com/oftrelay/covertchan/ofkey"
	"github.com/oftrelay/covertchan/oflog"
	"github.com/oftrelay/covertchan/ofweb"
	"github.com/oftrelay/covertchan/reports"
)

// Receiver holds one party's long-term identity key.
type Receiver struct {
	identityPrivateKey ofkey.SecretKey
	windowSize         int
	log                *oflog.Logger
	metrics            *ofweb.Metrics
}

// Option configures a Receiver.
type Option func(*Receiver)

// WithWindowSize overrides reports.DefaultWindowSize.
func WithWindowSize(n int) Option {
	return func(r *Receiver) { r.windowSize = n }
}

// WithLogger overrides the discard logger.
func WithLogger(log *oflog.Logger) Option {
	return func(r *Receiver) { r.log = log }
}

// WithMetrics attaches the counters a running ofweb.Server exposes on
// /metrics. A nil (the default) means Receive tracks nothing.
func WithMetrics(m *ofweb.Metrics) Option {
	return func(r *Receiver) { r.metrics = m }
}

// New constructs a Receiver.
func New(identityPrivateKey ofkey.SecretKey, opts ...Option) *Receiver {
	r := &Receiver{
		identityPrivateKey: identityPrivateKey,
		windowSize:         reports.DefaultWindowSize,
		log:                oflog.NewDiscard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetKeysForFetchingAndDecrypting returns the first dataLength pairs
// of channel.IterOurKeys() for a channel built against
// senderIdentityPublicKey, for callers that want to drive their own
// fetch loop instead of calling Receive.
func (r *Receiver) GetKeysForFetchingAndDecrypting(senderIdentityPublicKey ofkey.PublicKey, dataLength int) ([]channel.KeyPair, error) {
	ch, err := channel.FromIdentityKeys(r.identityPrivateKey, senderIdentityPublicKey)
	if err != nil {
		return nil, fmt.Errorf("receiver: build channel: %w", err)
	}

	pairs := make([]channel.KeyPair, 0, dataLength)
	for pair, iterErr := range take(ch.IterOurKeys(), dataLength) {
		if iterErr != nil {
			return nil, fmt.Errorf("receiver: channel rotation: %w", iterErr)
		}
		pairs = append(pairs, pair)
	}
	return pairs, nil
}

// Receive builds a channel against senderIdentityPublicKey, fetches
// windows of windowSize key pairs through fetcher, and majority-vote
// decodes the recovered status bytes until the first key-hash in a
// window comes back with no reports at all (the gap-stop rule). A
// fetch failure is fatal: no partial data is returned.
func (r *Receiver) Receive(ctx context.Context, senderIdentityPublicKey ofkey.PublicKey, fetcher reports.Fetcher) ([]byte, error) {
	ch, err := channel.FromIdentityKeys(r.identityPrivateKey, senderIdentityPublicKey)
	if err != nil {
		return nil, fmt.Errorf("receiver: build channel: %w", err)
	}

	var data []byte
	next, stop := iter.Pull2(ch.IterOurKeys())
	defer stop()

windows:
	for {
		window := make([]channel.KeyPair, 0, r.windowSize)
		for len(window) < r.windowSize {
			pair, iterErr, ok := next()
			if !ok {
				break windows
			}
			if iterErr != nil {
				return nil, fmt.Errorf("receiver: channel rotation: %w", iterErr)
			}
			window = append(window, pair)
		}
		if len(window) == 0 {
			break
		}

		pairs := make([]reports.KeyIDPair, len(window))
		for i, pair := range window {
			pairs[i] = reports.KeyIDPair{Private: pair.Private, ID: pair.Public.Hash()}
		}

		received, err := fetcher.FetchAndDecrypt(ctx, pairs)
		if err != nil {
			r.log.Errorf("receiver: fetch failed: %v", err)
			return nil, fmt.Errorf("receiver: fetch: %w", err)
		}
		if r.metrics != nil {
			r.metrics.FetchWindowsProcessed.Inc()
		}

		byID := make(map[[32]byte][]byte, len(window))
		for _, rep := range received {
			byID[rep.ID] = append(byID[rep.ID], rep.Payload.Location.Status)
		}

		for _, pair := range window {
			statuses, ok := byID[pair.Public.Hash()]
			if !ok || len(statuses) == 0 {
				if r.metrics != nil {
					r.metrics.GapStops.Inc()
				}
				break windows
			}
			if r.metrics != nil && !unanimous(statuses) {
				r.metrics.MajorityVoteDisagreements.Inc()
			}
			data = append(data, modalByte(statuses))
		}
	}

	return data, nil
}

// unanimous reports whether every status in statuses agrees.
func unanimous(statuses []byte) bool {
	for _, b := range statuses[1:] {
		if b != statuses[0] {
			return false
		}
	}
	return true
}

// modalByte returns the most-frequent byte in statuses, ties broken
// by lowest byte value.
func modalByte(statuses []byte) byte {
	sorted := make([]byte, len(statuses))
	copy(sorted, statuses)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	bestByte := sorted[0]
	bestCount := 0
	runByte := sorted[0]
	runCount := 0
	for _, b := range sorted {
		if b == runByte {
			runCount++
		} else {
			runByte = b
			runCount = 1
		}
		if runCount > bestCount {
			bestCount = runCount
			bestByte = runByte
		}
	}
	return bestByte
}

// take yields at most n items from seq, short-circuiting the
// underlying iterator as soon as n have been produced or it ends.
func take[T any](seq iter.Seq2[T, error], n int) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		if n <= 0 {
			return
		}
		i := 0
		for v, err := range seq {
			if !yield(v, err) {
				return
			}
			if err != nil {
				return
			}
			i++
			if i >= n {
				return
			}
		}
	}
}
