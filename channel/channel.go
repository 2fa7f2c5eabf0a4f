// Package channel implements TwoPartyChannel, the heart of spec.md:
// a deterministic, non-interactive, synchronizable stream of
// ephemeral P-224 keypairs shared by two parties who each hold only
// their own identity key and the peer's identity public key.
package channel

import (
	"iter"

	"github.com/oftrelay/covertchan/blecodec"
	"github.com/oftrelay/covertchan/ofcurve"
	"github.com/oftrelay/covertchan/ofkey"
)

// TwoPartyChannel is a value type: every field is copied by value, so
// passing or assigning a TwoPartyChannel clones its entire state.
// Rotation only ever happens through a *TwoPartyChannel receiver,
// and the iterator methods below always rotate a local copy, never
// the receiver the caller is holding.
type TwoPartyChannel struct {
	ourChannelPrivateKey  ofkey.SecretKey
	theirChannelPublicKey ofkey.PublicKey
	ourCurrentPrivateKey  ofkey.SecretKey
	theirCurrentPublicKey ofkey.PublicKey
}

// KeyPair is one (private key, advertised form) pair this channel
// hands to the local side — what spec.md calls "our" keys.
type KeyPair struct {
	Private ofkey.SecretKey
	Public  blecodec.OFPK
}

// FromIdentityKeys builds a channel from one side's identity private
// key and the peer's identity public key (spec.md §4.2). Two parties
// calling this with swapped arguments derive the same channel anchors
// (invariant I1) and the same rotation stream (invariant I3).
//
// Construction immediately rotates once past the channel anchors
// (invariant I2): without that step the first key either side emits
// would depend only on identity keys, identical across every message
// ever sent between the same two parties.
func FromIdentityKeys(ourIdentityPrivateKey ofkey.SecretKey, theirIdentityPublicKey ofkey.PublicKey) (TwoPartyChannel, error) {
	s, err := ofkey.SharedScalar(ourIdentityPrivateKey, theirIdentityPublicKey)
	if err != nil {
		return TwoPartyChannel{}, err
	}

	ourChannelPriv := ofkey.NewSecretKey(s.Mul(ourIdentityPrivateKey.Scalar()))

	theirChannelPoint, err := ofcurve.ScalarMultPoint(s, theirIdentityPublicKey.Point())
	if err != nil {
		return TwoPartyChannel{}, err
	}

	c := TwoPartyChannel{
		ourChannelPrivateKey:  ourChannelPriv,
		theirChannelPublicKey: ofkey.NewPublicKey(theirChannelPoint),
		ourCurrentPrivateKey:  ourChannelPriv,
		theirCurrentPublicKey: ofkey.NewPublicKey(theirChannelPoint),
	}
	if err := c.rotateKeys(); err != nil {
		return TwoPartyChannel{}, err
	}
	return c, nil
}

// rotateKeys advances both current keys by one step. Both sides
// compute the same scalar at every step: at step i, our_priv*their_pub
// and their_priv*our_pub are the same curve point (non-interactive
// ECDH), and SharedScalar's min/max byte ordering makes its hash input
// symmetric regardless of which side calls it "ours". See
// ofkey.SharedScalar's doc comment for the bug this guards against.
func (c *TwoPartyChannel) rotateKeys() error {
	s, err := ofkey.SharedScalar(c.ourCurrentPrivateKey, c.theirCurrentPublicKey)
	if err != nil {
		return err
	}

	nextPoint, err := ofcurve.ScalarMultPoint(s, c.theirCurrentPublicKey.Point())
	if err != nil {
		return err
	}

	c.ourCurrentPrivateKey = ofkey.NewSecretKey(s.Mul(c.ourCurrentPrivateKey.Scalar()))
	c.theirCurrentPublicKey = ofkey.NewPublicKey(nextPoint)
	return nil
}

// IterTheirKeys yields the infinite sequence of the peer's ephemeral
// advertising public keys (spec.md's iter_their_keys). It rotates a
// private copy of c, so the caller's own channel value is never
// mutated — two independent calls on the same c value always replay
// the same sequence from the start (invariant I4).
//
// A ZeroScalar/ScalarOutOfRange failure is fatal: it is yielded once
// as the error half of the pair and the sequence then ends, per
// spec.md §4.2's "do not skip the byte, do not retry" rule.
func (c TwoPartyChannel) IterTheirKeys() iter.Seq2[blecodec.OFPK, error] {
	return func(yield func(blecodec.OFPK, error) bool) {
		state := c
		for {
			if !yield(blecodec.FromPublicKey(state.theirCurrentPublicKey), nil) {
				return
			}
			if err := state.rotateKeys(); err != nil {
				yield(blecodec.OFPK{}, err)
				return
			}
		}
	}
}

// IterOurKeys yields the infinite sequence of (private key, advertised
// form) pairs this side will use to decrypt/query for reports
// (spec.md's iter_our_keys). Same cloning and failure discipline as
// IterTheirKeys.
func (c TwoPartyChannel) IterOurKeys() iter.Seq2[KeyPair, error] {
	return func(yield func(KeyPair, error) bool) {
		state := c
		for {
			pair := KeyPair{
				Private: state.ourCurrentPrivateKey,
				Public:  blecodec.FromPublicKey(state.ourCurrentPrivateKey.PublicKey()),
			}
			if !yield(pair, nil) {
				return
			}
			if err := state.rotateKeys(); err != nil {
				yield(KeyPair{}, err)
				return
			}
		}
	}
}

// GenerateAdvertisementData builds the advertisement payload for one
// data byte against the given ephemeral public key. It is pure:
// advancing the channel is the iterator's job, not this function's
// (spec.md §4.2).
func GenerateAdvertisementData(theirPublicKey blecodec.OFPK, data byte) [blecodec.AdvertisementSize]byte {
	return theirPublicKey.ToBLEAdvertisementData(blecodec.Metadata{Status: data, Hint: 0})
}
