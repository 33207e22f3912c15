// Package payload implements the fixed-width per-pattern metadata record
// (C1): phrase_id, salience, count, and pattern length n, written in the
// same order as pattern indices so position i*17 in payloads.bin always
// describes pattern i.
package payload

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/praetorian-labs/phrasematch/internal/matcherrors"
)

// RecordWidth is the on-disk size of one payload record in bytes:
// 4 (phrase_id) + 4 (salience) + 4 (count) + 4 (reserved) + 1 (n).
const RecordWidth = 17

// Record is one pattern's metadata.
type Record struct {
	PhraseID uint32
	Salience float32
	Count    uint32
	N        uint8 // pattern length in tokens, 1..255
}

// DerivedScore returns the salience_max tie-break metric:
// salience * ln(count+1). count+1 keeps the multiplier finite and
// non-negative even when count is zero.
func (r Record) DerivedScore() float64 {
	return float64(r.Salience) * math.Log(float64(r.Count)+1)
}

// WriteOne writes a single record to sink in the fixed little-endian
// layout, zeroing the reserved gap.
func WriteOne(w io.Writer, r Record) error {
	var buf [RecordWidth]byte
	binary.LittleEndian.PutUint32(buf[0:4], r.PhraseID)
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(r.Salience))
	binary.LittleEndian.PutUint32(buf[8:12], r.Count)
	// buf[12:16] reserved, left zero.
	buf[16] = r.N
	if _, err := w.Write(buf[:]); err != nil {
		return matcherrors.Wrap(matcherrors.IO, "payload record", err)
	}
	return nil
}

// ReadOne reads a single record from source. It returns io.EOF (unwrapped)
// when the stream ends exactly at a record boundary, so callers can use it
// as a loop sentinel the same way they would with bufio.Scanner. A partial
// trailing record is a fatal format error, not an end-of-stream condition.
func ReadOne(r io.Reader) (Record, error) {
	var buf [RecordWidth]byte
	n, err := io.ReadFull(r, buf[:])
	switch {
	case err == io.EOF && n == 0:
		return Record{}, io.EOF
	case err == io.ErrUnexpectedEOF || (err == io.EOF && n > 0):
		return Record{}, matcherrors.New(matcherrors.Format, "truncated payload record (got %d of %d bytes)", n, RecordWidth)
	case err != nil:
		return Record{}, matcherrors.Wrap(matcherrors.IO, "payload record", err)
	}

	return Record{
		PhraseID: binary.LittleEndian.Uint32(buf[0:4]),
		Salience: math.Float32frombits(binary.LittleEndian.Uint32(buf[4:8])),
		Count:    binary.LittleEndian.Uint32(buf[8:12]),
		N:        buf[16],
	}, nil
}

// ReadAll reads every record from r until a clean EOF at a record boundary.
func ReadAll(r io.Reader) ([]Record, error) {
	var out []Record
	for {
		rec, err := ReadOne(r)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
}

// String renders a record for diagnostics.
func (r Record) String() string {
	return fmt.Sprintf("Record{phrase_id=%d salience=%g count=%d n=%d}", r.PhraseID, r.Salience, r.Count, r.N)
}
