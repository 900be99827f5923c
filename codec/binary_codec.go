package codec

import (
	"encoding/binary"
	"errors"
)

// BinaryCodec implements a custom binary serialization for WireMessage.
//
// Binary format:
//
//	┌────────┬──────┬────────┬──────┬─────────┬──────┬────────┬──────────┬─────┬───────┬────────┬─────┬───────┐
//	│IDLen(2)│ ID   │CorrLen │ Corr │APILen(2)│ API  │ProcLen │  Proc    │PLen │Payload│Err(1)  │TLen │Trace  │
//	│        │bytes │  (2)   │bytes │         │bytes │  (2)   │  bytes   │ (4) │ bytes │        │ (4) │ bytes │
//	└────────┴──────┴────────┴──────┴─────────┴──────┴────────┴──────────┴─────┴───────┴────────┴─────┴───────┘
//
// Note: Payload itself is still JSON-encoded (the Kwargs or Result value).
// The performance gain comes from encoding WireMessage's own fields in
// binary instead of JSON, avoiding JSON field-name and string-escaping
// overhead on every frame.
type BinaryCodec struct{}

func (c *BinaryCodec) Encode(v any) ([]byte, error) {
	msg, ok := v.(*WireMessage)
	if !ok {
		return nil, errors.New("BinaryCodec: v must be *WireMessage")
	}

	traceBytes := []byte(msg.Trace)
	total := 2 + len(msg.ID) +
		2 + len(msg.CorrelationID) +
		2 + len(msg.APIName) +
		2 + len(msg.ProcedureName) +
		4 + len(msg.Payload) +
		1 +
		4 + len(traceBytes)
	buf := make([]byte, total)
	offset := 0

	offset = putString(buf, offset, msg.ID)
	offset = putString(buf, offset, msg.CorrelationID)
	offset = putString(buf, offset, msg.APIName)
	offset = putString(buf, offset, msg.ProcedureName)

	binary.BigEndian.PutUint32(buf[offset:offset+4], uint32(len(msg.Payload)))
	offset += 4
	copy(buf[offset:offset+len(msg.Payload)], msg.Payload)
	offset += len(msg.Payload)

	if msg.Error {
		buf[offset] = 1
	}
	offset++

	binary.BigEndian.PutUint32(buf[offset:offset+4], uint32(len(traceBytes)))
	offset += 4
	copy(buf[offset:offset+len(traceBytes)], traceBytes)

	return buf, nil
}

func (c *BinaryCodec) Decode(data []byte, v any) error {
	msg, ok := v.(*WireMessage)
	if !ok {
		return errors.New("BinaryCodec: v must be *WireMessage")
	}

	offset := 0

	msg.ID, offset = getString(data, offset)
	msg.CorrelationID, offset = getString(data, offset)
	msg.APIName, offset = getString(data, offset)
	msg.ProcedureName, offset = getString(data, offset)

	payloadLen := binary.BigEndian.Uint32(data[offset : offset+4])
	offset += 4
	msg.Payload = make([]byte, payloadLen)
	copy(msg.Payload, data[offset:offset+int(payloadLen)])
	offset += int(payloadLen)

	msg.Error = data[offset] != 0
	offset++

	traceLen := binary.BigEndian.Uint32(data[offset : offset+4])
	offset += 4
	msg.Trace = string(data[offset : offset+int(traceLen)])

	return nil
}

func (c *BinaryCodec) Type() CodecType {
	return CodecTypeBinary
}

func putString(buf []byte, offset int, s string) int {
	binary.BigEndian.PutUint16(buf[offset:offset+2], uint16(len(s)))
	offset += 2
	copy(buf[offset:offset+len(s)], s)
	return offset + len(s)
}

func getString(data []byte, offset int) (string, int) {
	strLen := binary.BigEndian.Uint16(data[offset : offset+2])
	offset += 2
	s := string(data[offset : offset+int(strLen)])
	return s, offset + int(strLen)
}
