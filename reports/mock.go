package reports

import "context"

// MockFetcher is an in-memory Fetcher for tests: it never touches the
// network and plays back exactly what was Record-ed for a given id,
// letting tests exercise the receiver's majority-vote and gap-stop
// logic deterministically instead of against a live relay network.
type MockFetcher struct {
	observations map[[32]byte][]byte
}

// NewMockFetcher returns an empty MockFetcher.
func NewMockFetcher() *MockFetcher {
	return &MockFetcher{observations: make(map[[32]byte][]byte)}
}

// Record seeds the relay reports a real network would have produced
// for id: one synthetic Report per status byte given. An empty or
// absent statuses list means "no relay ever saw this key", which is
// exactly the condition the receiver's gap-stop rule looks for.
func (m *MockFetcher) Record(id [32]byte, statuses ...byte) {
	m.observations[id] = append(m.observations[id], statuses...)
}

// FetchAndDecrypt returns every recorded report across pairs, in
// pairs order and, within one id, in Record order, ignoring the
// Private field entirely: a mock has
// nothing to decrypt, it already stores plaintext status bytes.
func (m *MockFetcher) FetchAndDecrypt(ctx context.Context, pairs []KeyIDPair) ([]Report, error) {
	var out []Report
	for _, p := range pairs {
		for _, status := range m.observations[p.ID] {
			out = append(out, Report{
				ID:      p.ID,
				Payload: ReportPayload{Location: LocationPayload{Status: status}},
			})
		}
	}
	return out, nil
}
