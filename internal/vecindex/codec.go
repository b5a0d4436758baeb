package vecindex

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// On-disk layout, little-endian throughout:
//
//	magic   4 bytes  "FVIX"
//	version uint32   1
//	dim     uint32
//	count   uint32
//	vectors count x dim float32
//	ids     count x (uvarint length, UTF-8 bytes)
//
// Vectors and the slot-to-chunk-id table live in one file so a partial
// write can never leave them pointing at different generations.
const (
	indexMagic   = "FVIX"
	indexVersion = 1

	maxIDLen = 1 << 10
	// maxIndexCount bounds the header count so a corrupt header cannot
	// drive a huge allocation before the body read fails.
	maxIndexCount = 1 << 20
)

// ErrCorruptedIndex reports an index file whose header or body does not
// decode cleanly; callers should treat the index as lost and rebuild it.
var ErrCorruptedIndex = errors.New("vecindex: corrupted index file")

func encodeIndex(w io.Writer, f *flat, ids []string) error {
	if len(ids) != f.size() {
		return fmt.Errorf("id table has %d entries for %d vectors", len(ids), f.size())
	}

	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(indexMagic); err != nil {
		return err
	}
	for _, v := range []uint32{indexVersion, uint32(f.dim), uint32(f.size())} {
		if err := binary.Write(bw, binary.LittleEndian, v); err != nil {
			return err
		}
	}

	buf := make([]byte, 4)
	for _, vec := range f.vectors {
		for _, x := range vec {
			binary.LittleEndian.PutUint32(buf, math.Float32bits(x))
			if _, err := bw.Write(buf); err != nil {
				return err
			}
		}
	}

	var lenBuf [binary.MaxVarintLen64]byte
	for _, id := range ids {
		n := binary.PutUvarint(lenBuf[:], uint64(len(id)))
		if _, err := bw.Write(lenBuf[:n]); err != nil {
			return err
		}
		if _, err := bw.WriteString(id); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func decodeIndex(r io.Reader, wantDim int) (*flat, []string, error) {
	br := bufio.NewReader(r)

	magic := make([]byte, len(indexMagic))
	if _, err := io.ReadFull(br, magic); err != nil {
		return nil, nil, fmt.Errorf("%w: short header", ErrCorruptedIndex)
	}
	if string(magic) != indexMagic {
		return nil, nil, fmt.Errorf("%w: bad magic %q", ErrCorruptedIndex, magic)
	}

	var version, dim, count uint32
	for _, dst := range []*uint32{&version, &dim, &count} {
		if err := binary.Read(br, binary.LittleEndian, dst); err != nil {
			return nil, nil, fmt.Errorf("%w: short header", ErrCorruptedIndex)
		}
	}
	if version != indexVersion {
		return nil, nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptedIndex, version)
	}
	if int(dim) != wantDim {
		return nil, nil, fmt.Errorf("%w: dimension %d, expected %d", ErrCorruptedIndex, dim, wantDim)
	}
	if count > maxIndexCount {
		return nil, nil, fmt.Errorf("%w: implausible vector count %d", ErrCorruptedIndex, count)
	}

	f := newFlat(int(dim))
	f.vectors = make([][]float32, 0, count)
	buf := make([]byte, 4)
	for i := uint32(0); i < count; i++ {
		vec := make([]float32, dim)
		for j := range vec {
			if _, err := io.ReadFull(br, buf); err != nil {
				return nil, nil, fmt.Errorf("%w: truncated vector %d", ErrCorruptedIndex, i)
			}
			vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(buf))
		}
		f.vectors = append(f.vectors, vec)
	}

	ids := make([]string, 0, count)
	for i := uint32(0); i < count; i++ {
		n, err := binary.ReadUvarint(br)
		if err != nil || n > maxIDLen {
			return nil, nil, fmt.Errorf("%w: truncated id table at slot %d", ErrCorruptedIndex, i)
		}
		id := make([]byte, n)
		if _, err := io.ReadFull(br, id); err != nil {
			return nil, nil, fmt.Errorf("%w: truncated id table at slot %d", ErrCorruptedIndex, i)
		}
		ids = append(ids, string(id))
	}

	// Trailing bytes mean the file was not written by this codec.
	if _, err := br.ReadByte(); err != io.EOF {
		return nil, nil, fmt.Errorf("%w: trailing data after id table", ErrCorruptedIndex)
	}
	return f, ids, nil
}
