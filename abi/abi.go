// Package abi parses human readable event/function signatures and
// encodes/decodes values according to the contract ABI byte format.
package abi

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

type Kind int

const (
	KindBool Kind = iota
	KindUint
	KindInt
	KindAddress
	KindFixedBytes
	KindBytes
	KindString
	KindArray
)

// Type describes one ABI type from the supported subset: booleans,
// fixed/variable bytes, strings, signed/unsigned integers up to 256 bits
// and one-dimensional arrays of these.
type Type struct {
	Kind Kind
	Bits int   // uint/int width, multiple of 8, <= 256
	Size int   // fixed bytes width, 1..32
	Elem *Type // array element type
}

func (t Type) String() string {
	switch t.Kind {
	case KindBool:
		return "bool"
	case KindUint:
		return fmt.Sprintf("uint%d", t.Bits)
	case KindInt:
		return fmt.Sprintf("int%d", t.Bits)
	case KindAddress:
		return "address"
	case KindFixedBytes:
		return fmt.Sprintf("bytes%d", t.Size)
	case KindBytes:
		return "bytes"
	case KindString:
		return "string"
	case KindArray:
		return t.Elem.String() + "[]"
	}
	return "unknown"
}

// Static reports whether values of this type occupy a single 32 byte word
// in the encoded data section.
func (t Type) Static() bool {
	switch t.Kind {
	case KindBytes, KindString, KindArray:
		return false
	}
	return true
}

func (t Type) Dynamic() bool { return !t.Static() }

type Param struct {
	Name     string
	Type     Type
	Indexed  bool
	Position int
}

type SigKind int

const (
	SigEvent SigKind = iota
	SigFunction
)

// Signature is a parsed event or function signature. Two signature strings
// with the same canonical form are equivalent regardless of parameter names.
type Signature struct {
	Name   string
	Kind   SigKind
	Params []Param
}

// Canonical returns the normalized signature text used for selector hashing,
// e.g. Transfer(address,address,uint256).
func (s *Signature) Canonical() string {
	var b strings.Builder
	b.WriteString(s.Name)
	b.WriteByte('(')
	for i, p := range s.Params {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(p.Type.String())
	}
	b.WriteByte(')')
	return b.String()
}

// Selector returns the canonical hash identifying on-chain rows for this
// signature: the full 32 byte keccak hash for events (log topic0), the
// first 4 bytes for functions (calldata prefix).
func (s *Signature) Selector() []byte {
	hash := crypto.Keccak256([]byte(s.Canonical()))
	if s.Kind == SigFunction {
		return hash[:4]
	}
	return hash
}

// SignatureError reports a malformed signature string together with the
// byte offset of the offending token.
type SignatureError struct {
	Pos int
	Msg string
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("invalid signature at offset %d: %s", e.Pos, e.Msg)
}

func sigErrf(pos int, format string, args ...interface{}) error {
	return &SignatureError{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

type sigToken struct {
	pos  int
	kind byte // 'w' word, '(', ')', ',', '[' array suffix
	word string
}

func lexSignature(input string) ([]sigToken, error) {
	var tokens []sigToken
	for i := 0; i < len(input); {
		c := input[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(' || c == ')' || c == ',':
			tokens = append(tokens, sigToken{pos: i, kind: c})
			i++
		case c == '[':
			j := i + 1
			for j < len(input) && input[j] != ']' {
				j++
			}
			if j >= len(input) {
				return nil, sigErrf(i, "unterminated '['")
			}
			if j != i+1 {
				return nil, sigErrf(i, "fixed-size arrays are not supported")
			}
			tokens = append(tokens, sigToken{pos: i, kind: '['})
			i = j + 1
		case isWordChar(c):
			j := i
			for j < len(input) && isWordChar(input[j]) {
				j++
			}
			tokens = append(tokens, sigToken{pos: i, kind: 'w', word: input[i:j]})
			i = j
		default:
			return nil, sigErrf(i, "unexpected character %q", c)
		}
	}
	return tokens, nil
}

func isWordChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_'
}

// ParseSignature parses one signature string of the form
//
//	[event|function] Name(type [indexed] [name], ...)
//
// The leading keyword is optional and defaults to event. Unnamed parameters
// are assigned positional names (arg0, arg1, ...).
func ParseSignature(input string) (*Signature, error) {
	tokens, err := lexSignature(input)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, sigErrf(0, "empty signature")
	}
	sig := &Signature{Kind: SigEvent}
	if tokens[0].kind == 'w' {
		switch strings.ToLower(tokens[0].word) {
		case "event":
			tokens = tokens[1:]
		case "function":
			sig.Kind = SigFunction
			tokens = tokens[1:]
		}
	}
	if len(tokens) == 0 || tokens[0].kind != 'w' {
		return nil, sigErrf(0, "missing signature name")
	}
	sig.Name = tokens[0].word
	tokens = tokens[1:]
	if len(tokens) == 0 || tokens[0].kind != '(' {
		return nil, sigErrf(len(input), "expected '(' after %q", sig.Name)
	}
	tokens = tokens[1:]
	for {
		if len(tokens) == 0 {
			return nil, sigErrf(len(input), "missing closing ')'")
		}
		if tokens[0].kind == ')' {
			tokens = tokens[1:]
			break
		}
		var param Param
		param.Position = len(sig.Params)
		param.Name = fmt.Sprintf("arg%d", param.Position)
		rest, err := parseParam(&param, tokens)
		if err != nil {
			return nil, err
		}
		tokens = rest
		sig.Params = append(sig.Params, param)
		if len(tokens) > 0 && tokens[0].kind == ',' {
			tokens = tokens[1:]
			if len(tokens) > 0 && tokens[0].kind == ')' {
				return nil, sigErrf(tokens[0].pos, "trailing comma")
			}
		}
	}
	if len(tokens) != 0 {
		return nil, sigErrf(tokens[0].pos, "unexpected trailing tokens")
	}
	return sig, nil
}

func parseParam(param *Param, tokens []sigToken) ([]sigToken, error) {
	if tokens[0].kind != 'w' {
		return nil, sigErrf(tokens[0].pos, "expected parameter type")
	}
	typ, err := parseType(tokens[0].word, tokens[0].pos)
	if err != nil {
		return nil, err
	}
	tokens = tokens[1:]
	for len(tokens) > 0 && tokens[0].kind == '[' {
		if typ.Kind == KindArray {
			return nil, sigErrf(tokens[0].pos, "nested arrays are not supported")
		}
		if typ.Dynamic() {
			return nil, sigErrf(tokens[0].pos, "arrays of %s are not supported", typ)
		}
		elem := typ
		typ = Type{Kind: KindArray, Elem: &elem}
		tokens = tokens[1:]
	}
	param.Type = typ
	if len(tokens) > 0 && tokens[0].kind == 'w' && tokens[0].word == "indexed" {
		param.Indexed = true
		tokens = tokens[1:]
	}
	if len(tokens) > 0 && tokens[0].kind == 'w' {
		param.Name = tokens[0].word
		tokens = tokens[1:]
	}
	if len(tokens) == 0 {
		return nil, sigErrf(0, "missing ')' after parameter %q", param.Name)
	}
	if tokens[0].kind != ',' && tokens[0].kind != ')' && tokens[0].kind != '[' {
		return nil, sigErrf(tokens[0].pos, "unexpected token after parameter %q", param.Name)
	}
	return tokens, nil
}

func parseType(word string, pos int) (Type, error) {
	switch word {
	case "bool":
		return Type{Kind: KindBool}, nil
	case "address":
		return Type{Kind: KindAddress}, nil
	case "string":
		return Type{Kind: KindString}, nil
	case "bytes":
		return Type{Kind: KindBytes}, nil
	}
	if n, ok := strings.CutPrefix(word, "bytes"); ok {
		size, err := strconv.Atoi(n)
		if err != nil || size < 1 || size > 32 {
			return Type{}, sigErrf(pos, "invalid fixed bytes width %q", word)
		}
		return Type{Kind: KindFixedBytes, Size: size}, nil
	}
	if n, ok := strings.CutPrefix(word, "uint"); ok {
		bits, err := parseBits(n)
		if err != nil {
			return Type{}, sigErrf(pos, "invalid integer width %q", word)
		}
		return Type{Kind: KindUint, Bits: bits}, nil
	}
	if n, ok := strings.CutPrefix(word, "int"); ok {
		bits, err := parseBits(n)
		if err != nil {
			return Type{}, sigErrf(pos, "invalid integer width %q", word)
		}
		return Type{Kind: KindInt, Bits: bits}, nil
	}
	return Type{}, sigErrf(pos, "unknown type %q", word)
}

func parseBits(s string) (int, error) {
	if s == "" {
		return 256, nil
	}
	bits, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if bits < 8 || bits > 256 || bits%8 != 0 {
		return 0, fmt.Errorf("width out of range: %d", bits)
	}
	return bits, nil
}
