package vector_index //nolint:revive // var-naming: using underscores for domain clarity

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// File layout, little endian:
//
//	magic "VIX1" | dim uint32 | count uint32 | count x (id int64 | dim x float32)
var fileMagic = [4]byte{'V', 'I', 'X', '1'}

func encodeSnapshot(s *snapshot) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(12 + len(s.ids)*(8+4*s.dim))

	buf.Write(fileMagic[:])
	hdr := []uint32{uint32(s.dim), uint32(len(s.ids))} //nolint:gosec // sizes are bounded by memory
	if err := binary.Write(&buf, binary.LittleEndian, hdr); err != nil {
		return nil, err
	}
	for i, id := range s.ids {
		if err := binary.Write(&buf, binary.LittleEndian, id); err != nil {
			return nil, err
		}
		if err := binary.Write(&buf, binary.LittleEndian, s.vecs[i]); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func decodeSnapshot(data []byte) (*snapshot, error) {
	r := bytes.NewReader(data)

	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if magic != fileMagic {
		return nil, errors.New("not a vector index file")
	}

	var hdr [2]uint32
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	dim, count := int(hdr[0]), int(hdr[1])
	if want := count * (8 + 4*dim); r.Len() != want {
		return nil, fmt.Errorf("index body is %d bytes, header implies %d", r.Len(), want)
	}

	s := newSnapshot(dim, count)
	for i := 0; i < count; i++ {
		var id int64
		if err := binary.Read(r, binary.LittleEndian, &id); err != nil {
			return nil, fmt.Errorf("read entry %d: %w", i, err)
		}
		vec := make([]float32, dim)
		if err := binary.Read(r, binary.LittleEndian, vec); err != nil {
			return nil, fmt.Errorf("read entry %d: %w", i, err)
		}
		s.put(id, vec)
	}
	return s, nil
}
