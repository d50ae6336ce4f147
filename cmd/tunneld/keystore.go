package main

import (
	"crypto/rand"
	"os"

	"golang.org/x/crypto/curve25519"

	"github.com/0xinf0/nooshdaroo-sub001/internal/coreerr"
)

// fileKeystore is the simplest external.Keystore: one X25519 private key
// read from (or generated into) a file, with no peer-pinning database —
// suitable for NK-pattern deployments where the server has no fixed peer
// set. KK deployments need a real embedding-supplied Keystore.
type fileKeystore struct {
	priv, pub [32]byte
}

func newFileKeystore(path string) (*fileKeystore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, coreerr.New("keystore: read ", path).Base(err).WithKind(coreerr.Unclassified)
		}
		var priv [32]byte
		if _, err := rand.Read(priv[:]); err != nil {
			return nil, coreerr.New("keystore: generate key").Base(err).WithKind(coreerr.Unclassified)
		}
		if err := os.WriteFile(path, priv[:], 0o600); err != nil {
			return nil, coreerr.New("keystore: write ", path).Base(err).WithKind(coreerr.Unclassified)
		}
		data = priv[:]
	}
	if len(data) != 32 {
		return nil, coreerr.New("keystore: ", path, " must contain exactly 32 bytes").WithKind(coreerr.Unclassified)
	}

	var k fileKeystore
	copy(k.priv[:], data)
	pub, err := curve25519.X25519(k.priv[:], curve25519.Basepoint)
	if err != nil {
		return nil, coreerr.New("keystore: derive public key").Base(err).WithKind(coreerr.Unclassified)
	}
	copy(k.pub[:], pub)
	return &k, nil
}

func (k *fileKeystore) StaticKeypair() (priv, pub [32]byte, err error) {
	return k.priv, k.pub, nil
}

func (k *fileKeystore) IsKnownPeer(pub [32]byte) bool {
	return true
}
