package sender

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oftrelay/covertchan/blecodec"
)

func TestPacerWrapDelaysCallsPastBurst(t *testing.T) {
	p := NewPacer(1000, 0) // one slot per millisecond, no burst

	var calls int
	wrapped := p.Wrap(func(adv [blecodec.AdvertisementSize]byte, addr [blecodec.AddressSize]byte) error {
		calls++
		return nil
	})

	var adv [blecodec.AdvertisementSize]byte
	var addr [blecodec.AddressSize]byte

	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, wrapped(adv, addr))
	}
	require.Equal(t, 5, calls)
	require.GreaterOrEqual(t, time.Since(start), 3*time.Millisecond)
}

func TestPacerWrapPropagatesAdvertiseError(t *testing.T) {
	p := NewPacer(1000, 4)
	wantErr := errors.New("radio busy")

	wrapped := p.Wrap(func(adv [blecodec.AdvertisementSize]byte, addr [blecodec.AddressSize]byte) error {
		return wantErr
	})

	var adv [blecodec.AdvertisementSize]byte
	var addr [blecodec.AddressSize]byte
	require.ErrorIs(t, wrapped(adv, addr), wantErr)
}
