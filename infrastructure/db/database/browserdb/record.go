package browserdb

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/kaspanet/fedstore/infrastructure/db/database/backend"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// The store starts with a fixed header and is followed by one record per
// committed batch:
//
//	<payload length><payload><checksum>
//
// The checksum is a CRC-32 (Castagnoli) of the length and the payload.
var (
	header = []byte("FSBRDB\x00\x01")

	byteOrder      = binary.LittleEndian
	crc32ByteOrder = binary.BigEndian
	castagnoli     = crc32.MakeTable(crc32.Castagnoli)
)

const (
	payloadLengthLength = 4
	checksumLength      = 4
	recordOverhead      = payloadLengthLength + checksumLength

	// maxPayloadLength bounds a single batch record. Anything larger is
	// treated as a torn or corrupted length field.
	maxPayloadLength = 1 << 30
)

// Payload field numbers.
const (
	fieldVersion   protowire.Number = 1
	fieldState     protowire.Number = 2
	fieldOperation protowire.Number = 3

	fieldOperationKey    protowire.Number = 1
	fieldOperationValue  protowire.Number = 2
	fieldOperationRemove protowire.Number = 3
)

func serializeRecord(batch *backend.Batch) []byte {
	payload := encodeBatch(batch)

	record := make([]byte, payloadLengthLength, recordOverhead+len(payload))
	byteOrder.PutUint32(record, uint32(len(payload)))
	record = append(record, payload...)
	checksum := crc32.Checksum(record, castagnoli)
	return crc32ByteOrder.AppendUint32(record, checksum)
}

func encodeBatch(batch *backend.Batch) []byte {
	var payload []byte
	payload = protowire.AppendTag(payload, fieldVersion, protowire.VarintType)
	payload = protowire.AppendVarint(payload, batch.Version)
	if batch.State != nil {
		payload = protowire.AppendTag(payload, fieldState, protowire.BytesType)
		payload = protowire.AppendBytes(payload, batch.State)
	}
	for _, operation := range batch.Operations {
		payload = protowire.AppendTag(payload, fieldOperation, protowire.BytesType)
		payload = protowire.AppendBytes(payload, encodeOperation(operation))
	}
	return payload
}

func encodeOperation(operation backend.Operation) []byte {
	var encoded []byte
	encoded = protowire.AppendTag(encoded, fieldOperationKey, protowire.BytesType)
	encoded = protowire.AppendBytes(encoded, operation.Key)
	if operation.Remove {
		encoded = protowire.AppendTag(encoded, fieldOperationRemove, protowire.VarintType)
		encoded = protowire.AppendVarint(encoded, protowire.EncodeBool(true))
		return encoded
	}
	encoded = protowire.AppendTag(encoded, fieldOperationValue, protowire.BytesType)
	encoded = protowire.AppendBytes(encoded, operation.Value)
	return encoded
}

func decodeBatch(payload []byte) (*backend.Batch, error) {
	batch := &backend.Batch{}
	for len(payload) > 0 {
		number, wireType, n := protowire.ConsumeTag(payload)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		payload = payload[n:]

		switch {
		case number == fieldVersion && wireType == protowire.VarintType:
			version, n := protowire.ConsumeVarint(payload)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			batch.Version = version
			payload = payload[n:]
		case number == fieldState && wireType == protowire.BytesType:
			state, n := protowire.ConsumeBytes(payload)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			batch.State = append([]byte{}, state...)
			payload = payload[n:]
		case number == fieldOperation && wireType == protowire.BytesType:
			encodedOperation, n := protowire.ConsumeBytes(payload)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			operation, err := decodeOperation(encodedOperation)
			if err != nil {
				return nil, err
			}
			batch.Operations = append(batch.Operations, operation)
			payload = payload[n:]
		default:
			n := protowire.ConsumeFieldValue(number, wireType, payload)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			payload = payload[n:]
		}
	}
	if batch.Version == 0 {
		return nil, errors.New("batch record has no version")
	}
	return batch, nil
}

func decodeOperation(encoded []byte) (backend.Operation, error) {
	operation := backend.Operation{Value: []byte{}}
	hasKey := false
	for len(encoded) > 0 {
		number, wireType, n := protowire.ConsumeTag(encoded)
		if n < 0 {
			return backend.Operation{}, protowire.ParseError(n)
		}
		encoded = encoded[n:]

		switch {
		case number == fieldOperationKey && wireType == protowire.BytesType:
			key, n := protowire.ConsumeBytes(encoded)
			if n < 0 {
				return backend.Operation{}, protowire.ParseError(n)
			}
			operation.Key = append([]byte{}, key...)
			hasKey = true
			encoded = encoded[n:]
		case number == fieldOperationValue && wireType == protowire.BytesType:
			value, n := protowire.ConsumeBytes(encoded)
			if n < 0 {
				return backend.Operation{}, protowire.ParseError(n)
			}
			operation.Value = append([]byte{}, value...)
			encoded = encoded[n:]
		case number == fieldOperationRemove && wireType == protowire.VarintType:
			remove, n := protowire.ConsumeVarint(encoded)
			if n < 0 {
				return backend.Operation{}, protowire.ParseError(n)
			}
			operation.Remove = protowire.DecodeBool(remove)
			encoded = encoded[n:]
		default:
			n := protowire.ConsumeFieldValue(number, wireType, encoded)
			if n < 0 {
				return backend.Operation{}, protowire.ParseError(n)
			}
			encoded = encoded[n:]
		}
	}
	if !hasKey {
		return backend.Operation{}, errors.New("operation record has no key")
	}
	if operation.Remove {
		operation.Value = nil
	}
	return operation, nil
}
