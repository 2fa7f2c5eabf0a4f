package ofconfig

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oftrelay/covertchan/ofkey"
)

func TestGenerateIdentityIsIdempotent(t *testing.T) {
	store := &IdentityStore{}

	created, err := store.GenerateIdentity("me")
	require.NoError(t, err)
	require.True(t, created)
	first := store.PrivateKey

	created, err = store.GenerateIdentity("me")
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first, store.PrivateKey)
}

func TestIdentityStoreSaveLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.json")

	store := &IdentityStore{}
	_, err := store.GenerateIdentity("me")
	require.NoError(t, err)

	other, err := ofkey.GenerateSecretKey()
	require.NoError(t, err)
	store.AddCorrespondent("alice", other.PublicKey())

	require.NoError(t, SaveIdentityStore(path, store))

	loaded, err := LoadIdentityStore(path)
	require.NoError(t, err)
	require.Equal(t, store.PrivateKey, loaded.PrivateKey)

	pub, ok, err := loaded.Correspondent("alice")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, other.PublicKey().ToSEC1Bytes(), pub.ToSEC1Bytes())
}

func TestAddCorrespondentUpdatesExistingLabel(t *testing.T) {
	store := &IdentityStore{}
	a, err := ofkey.GenerateSecretKey()
	require.NoError(t, err)
	b, err := ofkey.GenerateSecretKey()
	require.NoError(t, err)

	store.AddCorrespondent("alice", a.PublicKey())
	store.AddCorrespondent("alice", b.PublicKey())

	require.Len(t, store.Correspondents, 1)
	pub, ok, err := store.Correspondent("alice")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, b.PublicKey().ToSEC1Bytes(), pub.ToSEC1Bytes())
}

func TestCorrespondentUnknownLabelReturnsFalse(t *testing.T) {
	store := &IdentityStore{}
	_, ok, err := store.Correspondent("nobody")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRecordDecodedLength(t *testing.T) {
	store := &IdentityStore{}
	a, err := ofkey.GenerateSecretKey()
	require.NoError(t, err)
	store.AddCorrespondent("alice", a.PublicKey())

	store.RecordDecodedLength("alice", 42)
	require.Equal(t, 42, store.Correspondents[0].LastDecodedLength)
}
