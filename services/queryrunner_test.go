package services

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/jackc/pgconn"

	"github.com/indexsupply/golden-axe/abi"
	"github.com/indexsupply/golden-axe/query"
)

func TestEncodeCellScalars(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"nil", nil, nil},
		{"bytes", []byte{0xde, 0xad}, "0xdead"},
		{"numeric string", "123456789012345678901234567890", "123456789012345678901234567890"},
		{"int64", int64(42), int64(42)},
		{"bool", true, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := encodeCell(tc.in, nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %v (%T), want %v (%T)", got, got, tc.want, tc.want)
			}
		})
	}
}

func TestEncodeCellArray(t *testing.T) {
	// payload of uint256[]: length word 2, then elements 7 and 9
	payload := make([]byte, 96)
	payload[31] = 2
	payload[63] = 7
	payload[95] = 9

	col := &query.OutputColumn{Name: "vals", Type: "numeric[]", Elem: &abi.Type{Kind: abi.KindUint, Bits: 256}}
	got, err := encodeCell(payload, col)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	elems, ok := got.([]any)
	if !ok {
		t.Fatalf("expected []any, got %T", got)
	}
	if len(elems) != 2 || elems[0] != "7" || elems[1] != "9" {
		t.Errorf("got %v, want [7 9] as decimal strings", elems)
	}
}

func TestEncodeCellArrayTruncated(t *testing.T) {
	payload := make([]byte, 32)
	payload[31] = 3 // claims 3 elements, none present

	col := &query.OutputColumn{Name: "vals", Type: "numeric[]", Elem: &abi.Type{Kind: abi.KindUint, Bits: 256}}
	_, err := encodeCell(payload, col)
	var qerr *query.Error
	if !errors.As(err, &qerr) || qerr.Kind != query.ErrDecode {
		t.Fatalf("expected DecodeError, got %v", err)
	}
}

func TestEncodeCellJsonRoundTrip(t *testing.T) {
	got, err := encodeCell([]byte{0x01}, nil)
	if err != nil {
		t.Fatal(err)
	}
	raw, err := json.Marshal(got)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != `"0x01"` {
		t.Errorf("got %s", raw)
	}
}

func TestClassifyDbError(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want query.ErrorKind
	}{
		{"timeout", &pgconn.PgError{Code: "57014", Message: "canceling statement due to statement timeout"}, query.ErrTimeout},
		{"decode helper", &pgconn.PgError{Code: "P0001", Message: "DecodeError: blob too short"}, query.ErrDecode},
		{"other raise", &pgconn.PgError{Code: "P0001", Message: "something else"}, query.ErrStorage},
		{"plain", errors.New("connection refused"), query.ErrStorage},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := classifyDbError(tc.in)
			var qerr *query.Error
			if !errors.As(err, &qerr) {
				t.Fatalf("expected classified error, got %v", err)
			}
			if qerr.Kind != tc.want {
				t.Errorf("got kind %s, want %s", qerr.Kind, tc.want)
			}
		})
	}
}

func TestClassifyDbErrorPassesThrough(t *testing.T) {
	orig := query.NewError(query.ErrDecode, "boom")
	if got := classifyDbError(orig); got != orig {
		t.Errorf("already classified errors must pass through, got %v", got)
	}
}
