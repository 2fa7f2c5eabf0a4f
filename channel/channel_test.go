package channel

import (
	"iter"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oftrelay/covertchan/blecodec"
	"github.com/oftrelay/covertchan/ofkey"
)

func freshPair(t *testing.T) (ofkey.SecretKey, ofkey.SecretKey) {
	t.Helper()
	a, err := ofkey.GenerateSecretKey()
	require.NoError(t, err)
	b, err := ofkey.GenerateSecretKey()
	require.NoError(t, err)
	return a, b
}

func TestChannelAnchorsAreSymmetric(t *testing.T) {
	skA, skB := freshPair(t)

	chA, err := FromIdentityKeys(skA, skB.PublicKey())
	require.NoError(t, err)
	chB, err := FromIdentityKeys(skB, skA.PublicKey())
	require.NoError(t, err)

	require.Equal(t,
		chA.ourChannelPrivateKey.PublicKey().ToSEC1Bytes(),
		chB.theirChannelPublicKey.ToSEC1Bytes(),
	)
	require.Equal(t,
		chB.ourChannelPrivateKey.PublicKey().ToSEC1Bytes(),
		chA.theirChannelPublicKey.ToSEC1Bytes(),
	)
}

func TestStreamAgreement(t *testing.T) {
	const n = 100

	for trial := 0; trial < 20; trial++ {
		skA, skB := freshPair(t)

		chA, err := FromIdentityKeys(skA, skB.PublicKey())
		require.NoError(t, err)
		chB, err := FromIdentityKeys(skB, skA.PublicKey())
		require.NoError(t, err)

		theirNext, theirStop := iter.Pull2(chA.IterTheirKeys())
		defer theirStop()
		ourNext, ourStop := iter.Pull2(chB.IterOurKeys())
		defer ourStop()

		for i := 0; i < n; i++ {
			theirPub, terr, ok := theirNext()
			require.True(t, ok)
			require.NoError(t, terr)

			ourPair, oerr, ok := ourNext()
			require.True(t, ok)
			require.NoError(t, oerr)

			require.Equal(t, theirPub.PublicKey().ToSEC1Bytes(), ourPair.Public.PublicKey().ToSEC1Bytes())
			require.Equal(t, theirPub.PublicKey().ToSEC1Bytes(), ourPair.Private.PublicKey().ToSEC1Bytes())
		}
	}
}

func TestIteratorPurity(t *testing.T) {
	skA, skB := freshPair(t)
	ch, err := FromIdentityKeys(skA, skB.PublicKey())
	require.NoError(t, err)

	const n = 10
	first := collectTheirKeys(t, ch, n)
	second := collectTheirKeys(t, ch, n)
	require.Equal(t, first, second)
}

func TestRotationDoesNotConsumePeerState(t *testing.T) {
	skA, skB := freshPair(t)

	chA1, err := FromIdentityKeys(skA, skB.PublicKey())
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, chA1.rotateKeys())
	}

	chB, err := FromIdentityKeys(skB, skA.PublicKey())
	require.NoError(t, err)
	chA2, err := FromIdentityKeys(skA, skB.PublicKey())
	require.NoError(t, err)

	aSixth := collectTheirKeys(t, chA2, 6)
	bSixth := collectOurKeys(t, chB, 6)

	require.Equal(t, aSixth[5].PublicKey().ToSEC1Bytes(), bSixth[5].Public.PublicKey().ToSEC1Bytes())
}

func collectTheirKeys(t *testing.T, ch TwoPartyChannel, n int) []blecodec.OFPK {
	t.Helper()
	out := make([]blecodec.OFPK, 0, n)
	i := 0
	for pub, err := range ch.IterTheirKeys() {
		require.NoError(t, err)
		out = append(out, pub)
		i++
		if i >= n {
			break
		}
	}
	return out
}

func collectOurKeys(t *testing.T, ch TwoPartyChannel, n int) []KeyPair {
	t.Helper()
	out := make([]KeyPair, 0, n)
	i := 0
	for pair, err := range ch.IterOurKeys() {
		require.NoError(t, err)
		out = append(out, pair)
		i++
		if i >= n {
			break
		}
	}
	return out
}
