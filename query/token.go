package query

import (
	"encoding/hex"
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokWord
	tokQuoted
	tokNumber
	tokString
	tokHex
	tokOp     // one of the operator or punctuation strings below
	tokLParen // (
	tokRParen // )
	tokLBrack // [
	tokRBrack // ]
	tokComma
	tokDot
)

type token struct {
	kind tokenKind
	text string // lowercased for tokWord, verbatim otherwise
	raw  string // original spelling
	blob []byte // decoded bytes for tokHex
	pos  int
}

// statement and definition keywords that never appear in the accepted
// dialect and are rejected before parsing
var forbiddenWords = map[string]bool{
	"insert": true, "update": true, "delete": true, "merge": true,
	"create": true, "alter": true, "drop": true, "truncate": true,
	"grant": true, "revoke": true, "copy": true, "vacuum": true,
	"analyze": true, "explain": true, "set": true, "reset": true,
	"call": true, "do": true, "listen": true, "notify": true,
	"prepare": true, "execute": true, "deallocate": true,
	"begin": true, "commit": true, "rollback": true, "into": true,
}

func lexQuery(src string) ([]token, *Error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == ';':
			return nil, errf(ErrValidation, i, "statement separator ';' is not allowed")
		case c == '-' && i+1 < len(src) && src[i+1] == '-':
			return nil, errf(ErrValidation, i, "comments are not allowed")
		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			return nil, errf(ErrValidation, i, "comments are not allowed")
		case c == '(':
			toks = append(toks, token{kind: tokLParen, text: "(", pos: i})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokRParen, text: ")", pos: i})
			i++
		case c == '[':
			toks = append(toks, token{kind: tokLBrack, text: "[", pos: i})
			i++
		case c == ']':
			toks = append(toks, token{kind: tokRBrack, text: "]", pos: i})
			i++
		case c == ',':
			toks = append(toks, token{kind: tokComma, text: ",", pos: i})
			i++
		case c == '.':
			toks = append(toks, token{kind: tokDot, text: ".", pos: i})
			i++
		case c == '\'':
			lit, n, err := lexString(src, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tokString, text: lit, raw: src[i : i+n], pos: i})
			i += n
		case c == '"':
			lit, n, err := lexQuotedIdent(src, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tokQuoted, text: lit, raw: src[i : i+n], pos: i})
			i += n
		case c == '0' && i+1 < len(src) && (src[i+1] == 'x' || src[i+1] == 'X'):
			j := i + 2
			for j < len(src) && isHexDigit(src[j]) {
				j++
			}
			digits := src[i+2 : j]
			if len(digits) == 0 || len(digits)%2 != 0 {
				return nil, errf(ErrParse, i, "hex literal needs an even number of digits")
			}
			blob, _ := hex.DecodeString(strings.ToLower(digits))
			toks = append(toks, token{kind: tokHex, text: src[i:j], blob: blob, pos: i})
			i = j
		case c >= '0' && c <= '9':
			j := i
			seenDot := false
			for j < len(src) && (src[j] >= '0' && src[j] <= '9' || src[j] == '.' && !seenDot) {
				if src[j] == '.' {
					// keep "1." out of the number when followed by an ident
					if j+1 >= len(src) || src[j+1] < '0' || src[j+1] > '9' {
						break
					}
					seenDot = true
				}
				j++
			}
			toks = append(toks, token{kind: tokNumber, text: src[i:j], pos: i})
			i = j
		case isIdentStart(c):
			j := i
			for j < len(src) && isIdentPart(src[j]) {
				j++
			}
			word := strings.ToLower(src[i:j])
			if forbiddenWords[word] {
				return nil, errf(ErrValidation, i, "keyword %q is not allowed", word)
			}
			toks = append(toks, token{kind: tokWord, text: word, raw: src[i:j], pos: i})
			i = j
		default:
			if op, n := lexOp(src, i); n > 0 {
				toks = append(toks, token{kind: tokOp, text: op, pos: i})
				i += n
				continue
			}
			return nil, errf(ErrParse, i, "unexpected character %q", string(c))
		}
	}
	toks = append(toks, token{kind: tokEOF, pos: len(src)})
	return toks, nil
}

func lexOp(src string, i int) (string, int) {
	two := ""
	if i+1 < len(src) {
		two = src[i : i+2]
	}
	switch two {
	case "<=", ">=", "<>", "!=":
		if two == "!=" {
			return "<>", 2
		}
		return two, 2
	}
	switch src[i] {
	case '<', '>', '=', '+', '-', '*', '/', '%', '^':
		return string(src[i]), 1
	}
	return "", 0
}

// lexString reads a single quoted literal, with ” as the escape for a
// literal quote.
func lexString(src string, start int) (string, int, *Error) {
	var b strings.Builder
	i := start + 1
	for i < len(src) {
		if src[i] == '\'' {
			if i+1 < len(src) && src[i+1] == '\'' {
				b.WriteByte('\'')
				i += 2
				continue
			}
			return b.String(), i + 1 - start, nil
		}
		b.WriteByte(src[i])
		i++
	}
	return "", 0, errf(ErrParse, start, "unterminated string literal")
}

func lexQuotedIdent(src string, start int) (string, int, *Error) {
	var b strings.Builder
	i := start + 1
	for i < len(src) {
		if src[i] == '"' {
			if i+1 < len(src) && src[i+1] == '"' {
				b.WriteByte('"')
				i += 2
				continue
			}
			if b.Len() == 0 {
				return "", 0, errf(ErrParse, start, "empty quoted identifier")
			}
			return b.String(), i + 1 - start, nil
		}
		b.WriteByte(src[i])
		i++
	}
	return "", 0, errf(ErrParse, start, "unterminated quoted identifier")
}

func isIdentStart(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || c >= '0' && c <= '9'
}

func isHexDigit(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
}
