// Package ofble is a Linux host implementation of sender.AdvertiseFunc,
// driving BlueZ's LE advertising manager over D-Bus (see
// other_examples BLE material cited in DESIGN.md).
package ofble

import (
	"fmt"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/muka/go-bluetooth/api"
	"github.com/muka/go-bluetooth/bluez/profile/advertising"

	"github.com/oftrelay/covertchan/blecodec"
	"github.com/oftrelay/covertchan/oflog"
)

// appleCompanyID is the Bluetooth SIG company identifier the offline-
// finding AD preamble is built around.
const appleCompanyID = 0x004c

// Backend drives one local adapter's LE advertising manager.
type Backend struct {
	adapterID string
	duration  time.Duration
	log       *oflog.Logger
}

// Option configures a Backend.
type Option func(*Backend)

// WithAdapterID selects a non-default local adapter (default "hci0").
func WithAdapterID(id string) Option {
	return func(b *Backend) { b.adapterID = id }
}

// WithDuration sets how long each advertisement stays on air before
// Advertise returns.
func WithDuration(d time.Duration) Option {
	return func(b *Backend) { b.duration = d }
}

// WithLogger overrides the discard logger.
func WithLogger(log *oflog.Logger) Option {
	return func(b *Backend) { b.log = log }
}

// New builds a Backend. Call EnableAdapter once before the first
// Advertise to make sure the adapter is powered.
func New(opts ...Option) *Backend {
	b := &Backend{
		adapterID: "hci0",
		duration:  500 * time.Millisecond,
		log:       oflog.NewDiscard(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// EnableAdapter powers on the named local adapter over D-Bus, the way
// a driver program would otherwise run `bluetoothctl power on`.
func EnableAdapter(adapterID string) error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return fmt.Errorf("ofble: connect system bus: %w", err)
	}
	obj := conn.Object("org.bluez", dbus.ObjectPath("/org/bluez/"+adapterID))
	if err := obj.SetProperty("org.bluez.Adapter1.Powered", dbus.MakeVariant(true)); err != nil {
		return fmt.Errorf("ofble: power adapter %s: %w", adapterID, err)
	}
	return nil
}

// Advertise satisfies sender.AdvertiseFunc. It registers a one-shot LE
// advertisement carrying adv as manufacturer data and waits out the
// configured dwell time before withdrawing it.
//
// BlueZ's advertising manager advertises from the adapter's own
// address; spoofing the exact 6-byte addr the codec derives per
// ephemeral key would require raw HCI_LE_Set_Random_Address control
// this backend does not implement, so addr is only logged. The byte
// the recipient actually decodes still travels faithfully inside the
// manufacturer-data payload.
func (b *Backend) Advertise(adv [blecodec.AdvertisementSize]byte, addr [blecodec.AddressSize]byte) error {
	durationMillis := uint32(b.duration / time.Millisecond)

	props := &advertising.LEAdvertisement1Properties{
		Type: advertising.AdvertisementTypeBroadcast,
		ManufacturerData: map[uint16]interface{}{
			appleCompanyID: append([]byte(nil), adv[:]...),
		},
		Duration: durationMillis,
		Timeout:  durationMillis,
	}

	cancel, err := api.ExposeAdvertisement(b.adapterID, props, uint32(b.duration.Seconds()))
	if err != nil {
		return fmt.Errorf("ofble: expose advertisement: %w", err)
	}
	defer cancel()

	time.Sleep(b.duration)
	b.log.Verbosef("ofble: advertised %d bytes via %s (addr %x)", len(adv), b.adapterID, addr)
	return nil
}
