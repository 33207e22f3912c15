// Package tokenstream implements the deterministic bijection (C3) from a
// token-id sequence to a byte buffer that a byte-alphabet Aho-Corasick
// automaton can search without matching across token boundaries.
//
// Each token occupies exactly 8 bytes: 4 bytes of little-endian token id
// followed by 4 bytes of little-endian separator id. Because the separator
// id never appears inside any built pattern's token sequence, a raw
// automaton hit can never begin or end at a byte offset that isn't also a
// token boundary — see Encode's doc comment for the invariant this buys.
package tokenstream

import "encoding/binary"

// TokenWidth is the number of bytes one token occupies in the encoded
// buffer (4 bytes of token id + 4 bytes of separator id).
const TokenWidth = 8

// Encode concatenates little_endian(token) + little_endian(separatorID) for
// every token in ids.
//
// Invariant this buys the caller: any automaton match on the returned
// buffer at byte offsets [bStart, bEnd) satisfies bStart % 8 == 0 and
// bEnd % 8 == 0, provided separatorID never appears as a token inside any
// built pattern. DecodeOffsets relies on this.
func Encode(ids []uint32, separatorID uint32) []byte {
	buf := make([]byte, len(ids)*TokenWidth)
	for i, id := range ids {
		off := i * TokenWidth
		binary.LittleEndian.PutUint32(buf[off:off+4], id)
		binary.LittleEndian.PutUint32(buf[off+4:off+8], separatorID)
	}
	return buf
}

// DecodeOffsets converts a byte-offset match range back to token offsets.
// end_token is computed as ceil(byteEnd/8), which tolerates automaton
// implementations that report the last matched byte rather than the byte
// following the trailing separator; under the alignment invariant above,
// both forms agree.
func DecodeOffsets(byteStart, byteEnd int) (startToken, endToken int) {
	return byteStart / TokenWidth, (byteEnd + TokenWidth - 1) / TokenWidth
}

// ContainsSeparator reports whether ids contains the reserved separator
// id; such a sequence cannot be encoded as a pattern (spec data model:
// "a pattern must not contain the separator id").
func ContainsSeparator(ids []uint32, separatorID uint32) bool {
	for _, id := range ids {
		if id == separatorID {
			return true
		}
	}
	return false
}
