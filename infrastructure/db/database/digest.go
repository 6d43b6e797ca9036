package database

import (
	"github.com/kaspanet/fedstore/infrastructure/db/database/backend"
	"github.com/kaspanet/go-muhash"
	"google.golang.org/protobuf/encoding/protowire"
)

// The state digest of a snapshot is a multiset hash over all of its
// (key, value) pairs. It's updated incrementally on every commit and
// stored by the backend as the State of each batch, so two replicas that
// applied the same batches end up with equal digests.

func digestElement(key []byte, value []byte) []byte {
	element := make([]byte, 0, protowire.SizeBytes(len(key))+len(value))
	element = protowire.AppendBytes(element, key)
	return append(element, value...)
}

func deserializeDigest(state []byte) (*muhash.MuHash, error) {
	if len(state) == 0 {
		return muhash.NewMuHash(), nil
	}
	if len(state) != muhash.SerializedMuHashSize {
		return nil, backend.CorruptionError(nil, "state digest has length %d, want %d",
			len(state), muhash.SerializedMuHashSize)
	}
	var serialized muhash.SerializedMuHash
	copy(serialized[:], state)
	digest, err := muhash.DeserializeMuHash(&serialized)
	if err != nil {
		return nil, backend.CorruptionError(err, "failed to deserialize the state digest")
	}
	return digest, nil
}

func serializeDigest(digest *muhash.MuHash) []byte {
	serialized := digest.Serialize()
	return append([]byte{}, serialized[:]...)
}
