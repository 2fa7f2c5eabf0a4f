package receiver

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/oftrelay/covertchan/ofkey"
	"github.com/oftrelay/covertchan/ofweb"
	"github.com/oftrelay/covertchan/reports"
)

func freshPair(t *testing.T) (ofkey.SecretKey, ofkey.SecretKey) {
	t.Helper()
	a, err := ofkey.GenerateSecretKey()
	require.NoError(t, err)
	b, err := ofkey.GenerateSecretKey()
	require.NoError(t, err)
	return a, b
}

// seedUnanimous records one report per key, agreeing with data byte for
// byte, for exactly len(data) keys in the receiver's key stream.
func seedUnanimous(t *testing.T, r *Receiver, senderPub ofkey.PublicKey, data []byte) *reports.MockFetcher {
	t.Helper()
	pairs, err := r.GetKeysForFetchingAndDecrypting(senderPub, len(data))
	require.NoError(t, err)

	fetcher := reports.NewMockFetcher()
	for i, pair := range pairs {
		fetcher.Record(pair.Public.Hash(), data[i])
	}
	return fetcher
}

func TestReceiveRoundTripsShortASCII(t *testing.T) {
	skA, skB := freshPair(t)
	data := []byte("hello world")

	r := New(skB)
	fetcher := seedUnanimous(t, r, skA.PublicKey(), data)

	got, err := r.Receive(context.Background(), skA.PublicKey(), fetcher)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestReceiveRoundTripsBoundaryBytes(t *testing.T) {
	skA, skB := freshPair(t)
	data := []byte{0x00, 0xff, 0x00, 0xff}

	r := New(skB)
	fetcher := seedUnanimous(t, r, skA.PublicKey(), data)

	got, err := r.Receive(context.Background(), skA.PublicKey(), fetcher)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestReceiveRoundTripsAcrossWindowBoundary(t *testing.T) {
	skA, skB := freshPair(t)

	rng := rand.New(rand.NewSource(1))
	data := make([]byte, 300)
	rng.Read(data)

	r := New(skB, WithWindowSize(reports.DefaultWindowSize))
	fetcher := seedUnanimous(t, r, skA.PublicKey(), data)

	got, err := r.Receive(context.Background(), skA.PublicKey(), fetcher)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestReceiveAppliesMajorityVote(t *testing.T) {
	skA, skB := freshPair(t)

	r := New(skB)
	pairs, err := r.GetKeysForFetchingAndDecrypting(skA.PublicKey(), 1)
	require.NoError(t, err)

	fetcher := reports.NewMockFetcher()
	fetcher.Record(pairs[0].Public.Hash(), 0x10, 0x10, 0x20)

	got, err := r.Receive(context.Background(), skA.PublicKey(), fetcher)
	require.NoError(t, err)
	require.Equal(t, []byte{0x10}, got)
}

func TestReceiveStopsAtFirstGap(t *testing.T) {
	skA, skB := freshPair(t)
	data := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	r := New(skB)
	pairs, err := r.GetKeysForFetchingAndDecrypting(skA.PublicKey(), len(data))
	require.NoError(t, err)

	fetcher := reports.NewMockFetcher()
	for i := 0; i < 5; i++ {
		fetcher.Record(pairs[i].Public.Hash(), data[i])
	}
	// pairs[5] deliberately left unrecorded: the gap-stop key.

	got, err := r.Receive(context.Background(), skA.PublicKey(), fetcher)
	require.NoError(t, err)
	require.Equal(t, data[:5], got)
}

func TestReceiveReturnsNoDataWhenFirstKeyHasNoReports(t *testing.T) {
	skA, skB := freshPair(t)

	r := New(skB)
	fetcher := reports.NewMockFetcher()

	got, err := r.Receive(context.Background(), skA.PublicKey(), fetcher)
	require.NoError(t, err)
	require.Empty(t, got)
}

// failingFetcher succeeds for the first N window calls, then returns
// a fixed error for every call after that.
type failingFetcher struct {
	succeedCalls int
	calls        int
	err          error
	inner        *reports.MockFetcher
}

func (f *failingFetcher) FetchAndDecrypt(ctx context.Context, pairs []reports.KeyIDPair) ([]reports.Report, error) {
	f.calls++
	if f.calls > f.succeedCalls {
		return nil, f.err
	}
	return f.inner.FetchAndDecrypt(ctx, pairs)
}

func TestReceiveFailsFatallyOnSecondWindowFetchError(t *testing.T) {
	skA, skB := freshPair(t)

	r := New(skB, WithWindowSize(4))
	data := []byte{1, 2, 3, 4, 5, 6, 7, 8}

	pairs, err := r.GetKeysForFetchingAndDecrypting(skA.PublicKey(), len(data))
	require.NoError(t, err)

	inner := reports.NewMockFetcher()
	for i, pair := range pairs {
		inner.Record(pair.Public.Hash(), data[i])
	}

	wantErr := errors.New("transport failure")
	fetcher := &failingFetcher{succeedCalls: 1, err: wantErr, inner: inner}

	got, err := r.Receive(context.Background(), skA.PublicKey(), fetcher)
	require.Error(t, err)
	require.ErrorIs(t, err, wantErr)
	require.Nil(t, got, "a failed fetch must not return partial data")
}

func TestReceiveIncrementsAttachedMetrics(t *testing.T) {
	skA, skB := freshPair(t)
	data := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	reg := prometheus.NewRegistry()
	metrics := ofweb.NewMetrics(reg)

	r := New(skB, WithWindowSize(4), WithMetrics(metrics))

	pairs, err := r.GetKeysForFetchingAndDecrypting(skA.PublicKey(), len(data))
	require.NoError(t, err)

	fetcher := reports.NewMockFetcher()
	for i, pair := range pairs[:5] {
		fetcher.Record(pair.Public.Hash(), data[i])
	}
	// Give the sixth key disagreeing votes so the majority-vote
	// counter has something real to count, then leave the seventh
	// key unrecorded to trigger the gap-stop.
	fetcher.Record(pairs[5].Public.Hash(), 0x10, 0x10, 0x20)

	got, err := r.Receive(context.Background(), skA.PublicKey(), fetcher)
	require.NoError(t, err)
	require.Equal(t, []byte{data[0], data[1], data[2], data[3], data[4], 0x10}, got)

	require.Equal(t, float64(2), testutil.ToFloat64(metrics.FetchWindowsProcessed))
	require.Equal(t, float64(1), testutil.ToFloat64(metrics.MajorityVoteDisagreements))
	require.Equal(t, float64(1), testutil.ToFloat64(metrics.GapStops))
}
