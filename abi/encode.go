package abi

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// EncodeStatic encodes a value of a static type into one 32 byte word.
// Accepted Go types mirror DecodeStatic: bool, *big.Int, int64,
// common.Address, []byte.
func EncodeStatic(v interface{}, t Type) ([]byte, error) {
	word := make([]byte, WordLen)
	switch t.Kind {
	case KindBool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("encoding %s: want bool, got %T", t, v)
		}
		if b {
			word[WordLen-1] = 1
		}
		return word, nil
	case KindUint, KindInt:
		n, err := toBig(v)
		if err != nil {
			return nil, fmt.Errorf("encoding %s: %w", t, err)
		}
		if n.Sign() < 0 {
			if t.Kind == KindUint {
				return nil, fmt.Errorf("encoding %s: negative value %s", t, n)
			}
			n = new(big.Int).Add(n, twoPow256)
		}
		n.FillBytes(word)
		return word, nil
	case KindAddress:
		switch a := v.(type) {
		case common.Address:
			copy(word[12:], a[:])
		case []byte:
			if len(a) != common.AddressLength {
				return nil, fmt.Errorf("encoding %s: want 20 bytes, got %d", t, len(a))
			}
			copy(word[12:], a)
		default:
			return nil, fmt.Errorf("encoding %s: want address, got %T", t, v)
		}
		return word, nil
	case KindFixedBytes:
		b, ok := v.([]byte)
		if !ok || len(b) != t.Size {
			return nil, fmt.Errorf("encoding %s: want %d bytes, got %T", t, t.Size, v)
		}
		copy(word, b)
		return word, nil
	}
	return nil, fmt.Errorf("encoding %s: not a static type", t)
}

func toBig(v interface{}) (*big.Int, error) {
	switch n := v.(type) {
	case *big.Int:
		return n, nil
	case int64:
		return big.NewInt(n), nil
	case int:
		return big.NewInt(int64(n)), nil
	case uint64:
		return new(big.Int).SetUint64(n), nil
	}
	return nil, fmt.Errorf("want integer, got %T", v)
}

// EncodePayload encodes a dynamic value's tail: length word followed by the
// padded payload.
func EncodePayload(v interface{}, t Type) ([]byte, error) {
	switch t.Kind {
	case KindBytes, KindString:
		var data []byte
		switch d := v.(type) {
		case []byte:
			data = d
		case string:
			data = []byte(d)
		default:
			return nil, fmt.Errorf("encoding %s: want bytes or string, got %T", t, v)
		}
		out := make([]byte, WordLen+pad32(len(data)))
		putLen(out, len(data))
		copy(out[WordLen:], data)
		return out, nil
	case KindArray:
		elems, ok := v.([]interface{})
		if !ok {
			return nil, fmt.Errorf("encoding %s: want slice, got %T", t, v)
		}
		out := make([]byte, WordLen, WordLen+len(elems)*WordLen)
		putLen(out, len(elems))
		for _, e := range elems {
			word, err := EncodeStatic(e, *t.Elem)
			if err != nil {
				return nil, err
			}
			out = append(out, word...)
		}
		return out, nil
	}
	return nil, fmt.Errorf("encoding %s: not a dynamic type", t)
}

func pad32(n int) int { return (n + WordLen - 1) / WordLen * WordLen }
func putLen(w []byte, n int) {
	w[28] = byte(n >> 24)
	w[29] = byte(n >> 16)
	w[30] = byte(n >> 8)
	w[31] = byte(n)
}

// EncodeData builds the head/tail encoded data blob for the non-indexed
// parameters of a signature, as it would appear in a log's data section.
func EncodeData(params []Param, values []interface{}) ([]byte, error) {
	var data []Param
	for _, p := range params {
		if !p.Indexed {
			data = append(data, p)
		}
	}
	if len(data) != len(values) {
		return nil, fmt.Errorf("encoding: %d non-indexed params, %d values", len(data), len(values))
	}
	head := make([]byte, 0, len(data)*WordLen)
	var tail []byte
	tailBase := len(data) * WordLen
	for i, p := range data {
		if p.Type.Static() {
			word, err := EncodeStatic(values[i], p.Type)
			if err != nil {
				return nil, err
			}
			head = append(head, word...)
			continue
		}
		offWord := make([]byte, WordLen)
		putLen(offWord, tailBase+len(tail))
		head = append(head, offWord...)
		payload, err := EncodePayload(values[i], p.Type)
		if err != nil {
			return nil, err
		}
		tail = append(tail, payload...)
	}
	return append(head, tail...), nil
}
