package face

import (
	"bufio"
	"encoding/binary"
	"io"
)

// maxFrameSize bounds a single parsed message, mirroring the teacher's
// defn.MaxNDNPacketSize guard against a runaway length field.
const maxFrameSize = 64 * 1024

// Frame is one parsed CCN message plus the face it arrived on, the unit a
// transport's read goroutine hands to the IoLoop's inbound channel (SPEC_FULL
// §5: "transports each run their own read goroutines ... and hand frames
// over a channel rather than touching tables directly").
type Frame struct {
	FaceID uint64
	Data   []byte
}

// ReadFrame reads one complete outer TLV (type, length, value) from a
// stream transport and returns the full encoded bytes, header included.
// Grounded on the teacher's std/utils/io.ReadTlvStream, adapted to this
// package's minimal TLV varint (ccnname.TLNum's 1/3/5/9-byte convention).
func ReadFrame(r *bufio.Reader) ([]byte, error) {
	var header []byte
	if _, err := readTLNum(r, &header); err != nil { // type
		return nil, err
	}
	length, err := readTLNum(r, &header) // length
	if err != nil {
		return nil, err
	}
	if length > maxFrameSize {
		return nil, io.ErrShortBuffer
	}

	value := make([]byte, length)
	if _, err := io.ReadFull(r, value); err != nil {
		return nil, err
	}

	frame := make([]byte, 0, len(header)+len(value))
	frame = append(frame, header...)
	frame = append(frame, value...)
	return frame, nil
}

func readTLNum(r *bufio.Reader, acc *[]byte) (uint64, error) {
	b0, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	*acc = append(*acc, b0)

	switch {
	case b0 <= 0xfc:
		return uint64(b0), nil
	case b0 == 0xfd:
		var buf [2]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return 0, err
		}
		*acc = append(*acc, buf[:]...)
		return uint64(binary.BigEndian.Uint16(buf[:])), nil
	case b0 == 0xfe:
		var buf [4]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return 0, err
		}
		*acc = append(*acc, buf[:]...)
		return uint64(binary.BigEndian.Uint32(buf[:])), nil
	default:
		var buf [8]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return 0, err
		}
		*acc = append(*acc, buf[:]...)
		return binary.BigEndian.Uint64(buf[:]), nil
	}
}
