// Package reports implements the reports-fetcher contract spec.md §6
// defines as an external collaborator: given up to a window's worth
// of (private key, key-hash id) pairs, return whatever the offline-
// finding relay network has observed for each. This package ships the
// contract itself, an in-memory mock for tests, and a production HTTP
// client — spec.md treats the fetcher as "consumed", but a runnable
// system still needs something on the other end of that interface.
package reports

import (
	"context"

	"github.com/oftrelay/covertchan/ofkey"
)

// DefaultWindowSize is the reports service's per-request pair limit
// (spec.md §4.4/§9: "treat as a tunable constant with default 256").
const DefaultWindowSize = 256

// KeyIDPair is one entry of a fetch request: the private key needed
// to decrypt a report's payload, and the public key-hash id used to
// look the report up.
type KeyIDPair struct {
	Private ofkey.SecretKey
	ID      [32]byte
}

// LocationPayload carries the one byte of smuggled data a report's
// payload exposes.
type LocationPayload struct {
	Status byte `json:"status"`
}

// ReportPayload mirrors the offline-finding report envelope's shape
// (spec.md §6: "payload.location.status").
type ReportPayload struct {
	Location LocationPayload `json:"location"`
}

// Report is one relay observation of an advertised key.
type Report struct {
	ID      [32]byte      `json:"id"`
	Payload ReportPayload `json:"payload"`
}

// Fetcher is the external reports-fetcher contract. Implementations
// may suspend (network I/O) but must not retry internally in a way
// that masks a permanent failure — see the HTTPFetcher doc comment
// for where retries belong.
type Fetcher interface {
	FetchAndDecrypt(ctx context.Context, pairs []KeyIDPair) ([]Report, error)
}
