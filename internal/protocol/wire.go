package protocol

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// walkMessage iterates the top-level fields of a binary message, invoking
// visit once per field with the raw value bytes. For varint and fixed
// fields the value is the encoded scalar; for length-delimited fields it is
// the contained bytes. Group wire types are not part of the service's
// envelope and are rejected.
func walkMessage(buf []byte, visit func(num protowire.Number, typ protowire.Type, value []byte) error) error {
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return fmt.Errorf("invalid field tag: %w", protowire.ParseError(n))
		}
		buf = buf[n:]

		var value []byte
		switch typ {
		case protowire.VarintType:
			_, m := protowire.ConsumeVarint(buf)
			if m < 0 {
				return fmt.Errorf("field %d: invalid varint: %w", num, protowire.ParseError(m))
			}
			value = buf[:m]
			buf = buf[m:]
		case protowire.Fixed32Type:
			if len(buf) < 4 {
				return fmt.Errorf("field %d: truncated fixed32", num)
			}
			value = buf[:4]
			buf = buf[4:]
		case protowire.Fixed64Type:
			if len(buf) < 8 {
				return fmt.Errorf("field %d: truncated fixed64", num)
			}
			value = buf[:8]
			buf = buf[8:]
		case protowire.BytesType:
			v, m := protowire.ConsumeBytes(buf)
			if m < 0 {
				return fmt.Errorf("field %d: invalid length-delimited value: %w", num, protowire.ParseError(m))
			}
			value = v
			buf = buf[m:]
		default:
			return fmt.Errorf("field %d: unsupported wire type %d", num, typ)
		}

		if err := visit(num, typ, value); err != nil {
			return err
		}
	}
	return nil
}

// asVarint decodes a varint field value produced by walkMessage.
func asVarint(value []byte) uint64 {
	v, n := protowire.ConsumeVarint(value)
	if n < 0 {
		return 0
	}
	return v
}

// asDouble decodes a fixed64 field value as a float64.
func asDouble(value []byte) float64 {
	v, n := protowire.ConsumeFixed64(value)
	if n < 0 {
		return 0
	}
	return math.Float64frombits(v)
}
