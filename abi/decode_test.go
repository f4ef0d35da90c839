package abi

import (
	"bytes"
	"math/big"
	"reflect"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func mustType(t *testing.T, s string) Type {
	t.Helper()
	sig, err := ParseSignature("T(" + s + " x)")
	if err != nil {
		t.Fatalf("parsing type %q: %v", s, err)
	}
	return sig.Params[0].Type
}

func TestStaticRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		typ  string
		val  interface{}
	}{
		{"bool true", "bool", true},
		{"bool false", "bool", false},
		{"uint8 max", "uint8", big.NewInt(255)},
		{"uint256 zero", "uint256", big.NewInt(0)},
		{"uint256 large", "uint256", new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 255), big.NewInt(1))},
		{"int256 negative", "int256", big.NewInt(-1)},
		{"int128 negative", "int128", big.NewInt(-123456789)},
		{"int64 positive", "int64", big.NewInt(1 << 40)},
		{"address", "address", common.HexToAddress("0xdaabdaac8073a7dabdc96f6909e8476ab4001b34")},
		{"bytes1", "bytes1", []byte{0xff}},
		{"bytes32", "bytes32", bytes.Repeat([]byte{0xab}, 32)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			typ := mustType(t, tt.typ)
			word, err := EncodeStatic(tt.val, typ)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			if len(word) != WordLen {
				t.Fatalf("encoded word is %d bytes", len(word))
			}
			got, err := DecodeStatic(word, typ)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			switch want := tt.val.(type) {
			case *big.Int:
				if want.Cmp(got.(*big.Int)) != 0 {
					t.Errorf("got %s, want %s", got, want)
				}
			default:
				if !reflect.DeepEqual(got, tt.val) {
					t.Errorf("got %v, want %v", got, tt.val)
				}
			}
		})
	}
}

func TestDynamicRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		typ  string
		val  interface{}
	}{
		{"bytes", "bytes", []byte{0xde, 0xad, 0xbe, 0xef}},
		{"bytes empty", "bytes", []byte{}},
		{"bytes long", "bytes", bytes.Repeat([]byte{0x11}, 100)},
		{"string", "string", "hello world"},
		{"string empty", "string", ""},
		{"uint array", "uint256[]", []interface{}{big.NewInt(1), big.NewInt(2), big.NewInt(3)}},
		{"int array negatives", "int256[]", []interface{}{big.NewInt(-1), big.NewInt(0), big.NewInt(1)}},
		{"empty array", "uint256[]", []interface{}{}},
		{"bool array", "bool[]", []interface{}{true, false, true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			typ := mustType(t, tt.typ)
			payload, err := EncodePayload(tt.val, typ)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			got, err := DecodePayload(payload, typ)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			switch want := tt.val.(type) {
			case []interface{}:
				gotSlice := got.([]interface{})
				if len(gotSlice) != len(want) {
					t.Fatalf("got %d elements, want %d", len(gotSlice), len(want))
				}
				for i := range want {
					if w, ok := want[i].(*big.Int); ok {
						if w.Cmp(gotSlice[i].(*big.Int)) != 0 {
							t.Errorf("element %d: got %v, want %v", i, gotSlice[i], w)
						}
					} else if !reflect.DeepEqual(gotSlice[i], want[i]) {
						t.Errorf("element %d: got %v, want %v", i, gotSlice[i], want[i])
					}
				}
			case []byte:
				if !bytes.Equal(got.([]byte), want) {
					t.Errorf("got %x, want %x", got, want)
				}
			default:
				if !reflect.DeepEqual(got, tt.val) {
					t.Errorf("got %v, want %v", got, tt.val)
				}
			}
		})
	}
}

func TestStringPaddingTrimmed(t *testing.T) {
	typ := mustType(t, "string")
	payload, err := EncodePayload("abc\x00\x00", typ)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodePayload(payload, typ)
	if err != nil {
		t.Fatal(err)
	}
	if got.(string) != "abc" {
		t.Errorf("got %q, want %q", got, "abc")
	}
}

func TestDecodeDataHeadTail(t *testing.T) {
	sig, err := ParseSignature("Foo(uint a, string b, uint256[] c)")
	if err != nil {
		t.Fatal(err)
	}
	values := []interface{}{
		big.NewInt(42),
		"hi",
		[]interface{}{big.NewInt(7), big.NewInt(8)},
	}
	blob, err := EncodeData(sig.Params, values)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeData(blob, sig.Params)
	if err != nil {
		t.Fatal(err)
	}
	if got[0].(*big.Int).Int64() != 42 {
		t.Errorf("a: got %v", got[0])
	}
	if got[1].(string) != "hi" {
		t.Errorf("b: got %v", got[1])
	}
	arr := got[2].([]interface{})
	if len(arr) != 2 || arr[0].(*big.Int).Int64() != 7 || arr[1].(*big.Int).Int64() != 8 {
		t.Errorf("c: got %v", got[2])
	}
}

func TestDecodeBounds(t *testing.T) {
	tests := []struct {
		name string
		typ  string
		blob []byte
		run  func(t Type, blob []byte) error
	}{
		{
			name: "short static word",
			typ:  "uint256",
			blob: make([]byte, 16),
			run: func(typ Type, blob []byte) error {
				_, err := DecodeStatic(blob, typ)
				return err
			},
		},
		{
			name: "missing head word",
			typ:  "bytes",
			blob: make([]byte, 16),
			run: func(typ Type, blob []byte) error {
				_, err := DecodeDynamic(blob, 0, typ)
				return err
			},
		},
		{
			name: "offset past end",
			typ:  "bytes",
			blob: encodeOffsetWord(64), // blob is only one word long
			run: func(typ Type, blob []byte) error {
				_, err := DecodeDynamic(blob, 0, typ)
				return err
			},
		},
		{
			name: "length exceeds payload",
			typ:  "bytes",
			blob: append(encodeOffsetWord(32), encodeOffsetWord(1000)...),
			run: func(typ Type, blob []byte) error {
				_, err := DecodeDynamic(blob, 0, typ)
				return err
			},
		},
		{
			name: "element count exceeds payload",
			typ:  "uint256[]",
			blob: encodeOffsetWord(4),
			run: func(typ Type, blob []byte) error {
				_, err := DecodePayload(blob, typ)
				return err
			},
		},
		{
			name: "offset word overflows 32 bits",
			typ:  "bytes",
			blob: bytes.Repeat([]byte{0xff}, 64),
			run: func(typ Type, blob []byte) error {
				_, err := DecodeDynamic(blob, 0, typ)
				return err
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run(mustType(t, tt.typ), tt.blob)
			if err == nil {
				t.Fatal("expected DecodeError")
			}
			if _, ok := err.(*DecodeError); !ok {
				t.Errorf("got %T (%v), want *DecodeError", err, err)
			}
		})
	}
}

func encodeOffsetWord(n int) []byte {
	w := make([]byte, WordLen)
	putLen(w, n)
	return w
}
