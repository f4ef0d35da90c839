package abi

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// WordLen is the size of one encoded ABI word.
const WordLen = 32

// DecodeError reports encoded bytes that violate the ABI length/offset
// invariants for their declared type. Decoding never reads past the end of
// the supplied blob; it fails with this error instead.
type DecodeError struct {
	Type Type
	Msg  string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding %s: %s", e.Type, e.Msg)
}

func decErrf(t Type, format string, args ...interface{}) error {
	return &DecodeError{Type: t, Msg: fmt.Sprintf(format, args...)}
}

// Word returns the 32 byte word starting at byte offset off.
func Word(blob []byte, off int) ([]byte, error) {
	if off < 0 || off+WordLen > len(blob) {
		return nil, &DecodeError{Msg: fmt.Sprintf("word at offset %d out of bounds (blob is %d bytes)", off, len(blob))}
	}
	return blob[off : off+WordLen], nil
}

// DecodeStatic interprets one 32 byte word as a value of the given static
// type. Returned Go types: bool, *big.Int (uint and int), common.Address,
// []byte (fixed bytes).
func DecodeStatic(word []byte, t Type) (interface{}, error) {
	if len(word) != WordLen {
		return nil, decErrf(t, "static value must be one %d byte word, got %d bytes", WordLen, len(word))
	}
	switch t.Kind {
	case KindBool:
		return word[WordLen-1] != 0, nil
	case KindUint:
		return new(big.Int).SetBytes(word), nil
	case KindInt:
		return decodeTwosComplement(word), nil
	case KindAddress:
		return common.BytesToAddress(word[12:]), nil
	case KindFixedBytes:
		out := make([]byte, t.Size)
		copy(out, word[:t.Size])
		return out, nil
	}
	return nil, decErrf(t, "not a static type")
}

var twoPow256 = new(big.Int).Lsh(big.NewInt(1), 256)

func decodeTwosComplement(word []byte) *big.Int {
	n := new(big.Int).SetBytes(word)
	if word[0]&0x80 != 0 {
		n.Sub(n, twoPow256)
	}
	return n
}

// DecodeDynamic resolves the head word at position headPos (counted in
// words from the start of blob), follows the tail offset and decodes the
// dynamic value found there. Returned Go types: []byte (bytes), string,
// []interface{} (arrays, elements per DecodeStatic).
func DecodeDynamic(blob []byte, headPos int, t Type) (interface{}, error) {
	head, err := Word(blob, headPos*WordLen)
	if err != nil {
		return nil, err
	}
	off, err := wordToOffset(head, t)
	if err != nil {
		return nil, err
	}
	if off > len(blob) {
		return nil, decErrf(t, "tail offset %d past end of %d byte blob", off, len(blob))
	}
	return DecodePayload(blob[off:], t)
}

// DecodePayload decodes a dynamic value whose tail payload (length word
// followed by data) starts at the beginning of payload.
func DecodePayload(payload []byte, t Type) (interface{}, error) {
	lenWord, err := Word(payload, 0)
	if err != nil {
		return nil, decErrf(t, "missing length word")
	}
	n, err := wordToOffset(lenWord, t)
	if err != nil {
		return nil, err
	}
	switch t.Kind {
	case KindBytes, KindString:
		if WordLen+n > len(payload) {
			return nil, decErrf(t, "declared length %d exceeds remaining %d bytes", n, len(payload)-WordLen)
		}
		data := payload[WordLen : WordLen+n]
		if t.Kind == KindString {
			return strings.TrimRight(string(data), "\x00"), nil
		}
		out := make([]byte, n)
		copy(out, data)
		return out, nil
	case KindArray:
		if WordLen+n*WordLen > len(payload) {
			return nil, decErrf(t, "declared element count %d exceeds remaining %d bytes", n, len(payload)-WordLen)
		}
		out := make([]interface{}, 0, n)
		for i := 0; i < n; i++ {
			word := payload[WordLen+i*WordLen : WordLen+(i+1)*WordLen]
			v, err := DecodeStatic(word, *t.Elem)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	}
	return nil, decErrf(t, "not a dynamic type")
}

// Offsets and lengths are 32 byte words but only the low 4 bytes are
// effective; a value with any of the high 28 bytes set is out of bounds
// for any realistic blob and rejected outright.
func wordToOffset(word []byte, t Type) (int, error) {
	for _, b := range word[:WordLen-4] {
		if b != 0 {
			return 0, decErrf(t, "offset/length word overflows 32 bits")
		}
	}
	n := int(word[28])<<24 | int(word[29])<<16 | int(word[30])<<8 | int(word[31])
	return n, nil
}

// DecodeData decodes the non-indexed parameters of a signature from a log
// data (or calldata argument) blob, in declaration order.
func DecodeData(blob []byte, params []Param) ([]interface{}, error) {
	var out []interface{}
	pos := 0
	for _, p := range params {
		if p.Indexed {
			continue
		}
		var (
			v   interface{}
			err error
		)
		if p.Type.Static() {
			var w []byte
			w, err = Word(blob, pos*WordLen)
			if err == nil {
				v, err = DecodeStatic(w, p.Type)
			}
		} else {
			v, err = DecodeDynamic(blob, pos, p.Type)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		pos++
	}
	return out, nil
}
