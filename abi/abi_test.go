package abi

import (
	"encoding/hex"
	"testing"
)

func TestParseSignatureCanonical(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		canonical string
	}{
		{
			name:      "erc20 transfer",
			input:     "Transfer(address indexed from, address indexed to, uint tokens)",
			canonical: "Transfer(address,address,uint256)",
		},
		{
			name:      "event keyword prefix",
			input:     "event Transfer(address from, address to, uint256 value)",
			canonical: "Transfer(address,address,uint256)",
		},
		{
			name:      "unnamed params",
			input:     "Approval(address,address,uint256)",
			canonical: "Approval(address,address,uint256)",
		},
		{
			name:      "no params",
			input:     "Paused()",
			canonical: "Paused()",
		},
		{
			name:      "dynamic types",
			input:     "Foo(string a, bytes16 b, bytes c, int256 d, int256[] e, bool g)",
			canonical: "Foo(string,bytes16,bytes,int256,int256[],bool)",
		},
		{
			name:      "default widths expand",
			input:     "Foo(uint a, int b)",
			canonical: "Foo(uint256,int256)",
		},
		{
			name:      "surrounding whitespace",
			input:     "\r\nTransfer(address indexed from, address indexed to, uint tokens)\r\n",
			canonical: "Transfer(address,address,uint256)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig, err := ParseSignature(tt.input)
			if err != nil {
				t.Fatalf("ParseSignature(%q): %v", tt.input, err)
			}
			if sig.Canonical() != tt.canonical {
				t.Errorf("canonical: got %q, want %q", sig.Canonical(), tt.canonical)
			}
			// canonical form must round-trip through the parser
			again, err := ParseSignature(sig.Canonical())
			if err != nil {
				t.Fatalf("re-parsing canonical %q: %v", sig.Canonical(), err)
			}
			if again.Canonical() != tt.canonical {
				t.Errorf("round-trip canonical: got %q, want %q", again.Canonical(), tt.canonical)
			}
		})
	}
}

func TestParseSignatureErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"missing tuple", "Transfer"},
		{"unknown type", "Foo(tuple a)"},
		{"bad bit width", "Foo(uint7 a)"},
		{"width too large", "Foo(uint264 a)"},
		{"nested array", "Foo(uint256[][] a)"},
		{"array of dynamic", "Foo(string[] a)"},
		{"fixed size array", "Foo(uint256[3] a)"},
		{"bytes width zero", "Foo(bytes0 a)"},
		{"bytes width too large", "Foo(bytes33 a)"},
		{"unterminated params", "Foo(uint a"},
		{"trailing comma", "Foo(uint a,)"},
		{"trailing garbage", "Foo(uint a) bar"},
		{"unexpected char", "Foo(uint a; uint b)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSignature(tt.input)
			if err == nil {
				t.Fatalf("ParseSignature(%q): expected error", tt.input)
			}
			if _, ok := err.(*SignatureError); !ok {
				t.Errorf("ParseSignature(%q): got %T, want *SignatureError", tt.input, err)
			}
		})
	}
}

func TestSelector(t *testing.T) {
	sig, err := ParseSignature("Transfer(address indexed from, address indexed to, uint tokens)")
	if err != nil {
		t.Fatal(err)
	}
	want := "ddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"
	if got := hex.EncodeToString(sig.Selector()); got != want {
		t.Errorf("event selector: got %s, want %s", got, want)
	}

	fn, err := ParseSignature("function transfer(address to, uint256 value)")
	if err != nil {
		t.Fatal(err)
	}
	if fn.Kind != SigFunction {
		t.Fatal("expected function signature")
	}
	if got := hex.EncodeToString(fn.Selector()); got != "a9059cbb" {
		t.Errorf("function selector: got %s, want a9059cbb", got)
	}
}

func TestParamDefaults(t *testing.T) {
	sig, err := ParseSignature("Foo(uint, address indexed owner, bytes32)")
	if err != nil {
		t.Fatal(err)
	}
	if len(sig.Params) != 3 {
		t.Fatalf("got %d params, want 3", len(sig.Params))
	}
	if sig.Params[0].Name != "arg0" || sig.Params[2].Name != "arg2" {
		t.Errorf("synthetic names: got %q, %q", sig.Params[0].Name, sig.Params[2].Name)
	}
	if sig.Params[1].Name != "owner" || !sig.Params[1].Indexed {
		t.Errorf("named indexed param parsed wrong: %+v", sig.Params[1])
	}
	for i, p := range sig.Params {
		if p.Position != i {
			t.Errorf("param %d position = %d", i, p.Position)
		}
	}
}
