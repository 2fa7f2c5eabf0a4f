// Package sender implements the outbound half of spec.md §4.3: pair
// each data byte with the channel's next advertised key and hand it
// to an injected advertise function, stopping at the first failure.
package sender

import (
	"fmt"
	"iter"

	"github.com/oftrelay/covertchan/blecodec"
	"github.com/oftrelay/covertchan/channel"
	"github.com/oftrelay/covertchan/ofkey"
	"github.com/oftrelay/covertchan/oflog"
	"github.com/oftrelay/covertchan/ofweb"
)

// AdvertiseFunc broadcasts one non-connectable, non-scannable
// undirected BLE advertisement at addr with payload adv. It may
// suspend; an error aborts the surrounding Transmit call.
type AdvertiseFunc func(adv [blecodec.AdvertisementSize]byte, addr [blecodec.AddressSize]byte) error

// Sender holds one party's long-term identity key.
type Sender struct {
	identityPrivateKey ofkey.SecretKey
	log                *oflog.Logger
	metrics            *ofweb.Metrics
}

// Option configures a Sender.
type Option func(*Sender)

// WithLogger overrides the discard logger.
func WithLogger(log *oflog.Logger) Option {
	return func(s *Sender) { s.log = log }
}

// WithMetrics attaches the counters a running ofweb.Server exposes on
// /metrics. A nil (the default) means Transmit tracks nothing.
func WithMetrics(m *ofweb.Metrics) Option {
	return func(s *Sender) { s.metrics = m }
}

// New constructs a Sender.
func New(identityPrivateKey ofkey.SecretKey, opts ...Option) *Sender {
	s := &Sender{identityPrivateKey: identityPrivateKey, log: oflog.NewDiscard()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Transmit zips data with the channel's their-keys stream and calls
// advertise once per byte, in order. On the first advertise error it
// stops and returns the count of advertise calls made so far
// including the failing one (take-while-inclusive, per spec.md §9's
// fix to the ambiguous source behavior) along with that error. A nil
// error means every byte in data was advertised.
func (s *Sender) Transmit(data []byte, recipientIdentityPublicKey ofkey.PublicKey, advertise AdvertiseFunc) (int, error) {
	ch, err := channel.FromIdentityKeys(s.identityPrivateKey, recipientIdentityPublicKey)
	if err != nil {
		return 0, fmt.Errorf("sender: build channel: %w", err)
	}

	count := 0
	next, stop := iter.Pull2(ch.IterTheirKeys())
	defer stop()

	for _, b := range data {
		theirPub, iterErr, ok := next()
		if !ok {
			return count, nil
		}
		if iterErr != nil {
			s.log.Errorf("sender: channel rotation failed after %d advertisements: %v", count, iterErr)
			return count, fmt.Errorf("sender: channel rotation: %w", iterErr)
		}

		addr := theirPub.ToBLEAddressBytesBE()
		adv := channel.GenerateAdvertisementData(theirPub, b)
		count++
		if s.metrics != nil {
			s.metrics.AdvertisementsEmitted.Inc()
		}

		if err := advertise(adv, addr); err != nil {
			s.log.Errorf("sender: advertise failed after %d/%d bytes: %v", count, len(data), err)
			return count, fmt.Errorf("sender: advertise: %w", err)
		}
		if s.metrics != nil {
			s.metrics.BytesSent.Inc()
		}
	}
	return count, nil
}
