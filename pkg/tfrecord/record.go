package tfrecord

// Package tfrecord writes TFRecord-framed training examples.
// The framing is the TensorFlow record format:
//
//	uint64 little-endian payload length
//	uint32 masked CRC32-C of the length bytes
//	payload
//	uint32 masked CRC32-C of the payload
//
// The payload of each record is a serialized tf.train.Example.

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
)

const crcMaskDelta = 0xa282ead8

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

func maskedCRC(b []byte) uint32 {
	c := crc32.Checksum(b, castagnoli)
	return ((c >> 15) | (c << 17)) + crcMaskDelta
}

// Writer frames payloads into a TFRecord stream
type Writer struct {
	w io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (w *Writer) WriteRecord(payload []byte) error {
	var header [12]byte
	binary.LittleEndian.PutUint64(header[:8], uint64(len(payload)))
	binary.LittleEndian.PutUint32(header[8:], maskedCRC(header[:8]))
	if _, err := w.w.Write(header[:]); err != nil {
		return err
	}
	if _, err := w.w.Write(payload); err != nil {
		return err
	}
	var footer [4]byte
	binary.LittleEndian.PutUint32(footer[:], maskedCRC(payload))
	_, err := w.w.Write(footer[:])
	return err
}

// Reader iterates the records of a TFRecord stream, verifying CRCs.
type Reader struct {
	r io.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Next returns the next record payload, or io.EOF at the end of the stream.
func (r *Reader) Next() ([]byte, error) {
	var header [12]byte
	if _, err := io.ReadFull(r.r, header[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("truncated record header")
		}
		return nil, err
	}
	if binary.LittleEndian.Uint32(header[8:]) != maskedCRC(header[:8]) {
		return nil, fmt.Errorf("record length CRC mismatch")
	}
	length := binary.LittleEndian.Uint64(header[:8])
	payload := make([]byte, length)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		return nil, fmt.Errorf("truncated record payload: %w", err)
	}
	var footer [4]byte
	if _, err := io.ReadFull(r.r, footer[:]); err != nil {
		return nil, fmt.Errorf("truncated record footer: %w", err)
	}
	if binary.LittleEndian.Uint32(footer[:]) != maskedCRC(payload) {
		return nil, fmt.Errorf("record payload CRC mismatch")
	}
	return payload, nil
}
