package query

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"
)

const transferSig = "Transfer(address indexed from, address indexed to, uint256 tokens)"

func mustCompile(t *testing.T, src string, sigs []string, opts Options) *CompiledQuery {
	t.Helper()
	cq, err := Compile(src, sigs, opts)
	if err != nil {
		t.Fatalf("Compile(%q): %v", src, err)
	}
	return cq
}

func unhex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestCompileTransfer(t *testing.T) {
	cq := mustCompile(t,
		`select "from", "to", tokens from transfer limit 1`,
		[]string{transferSig},
		Options{Chains: []uint64{1}},
	)
	want := `with "transfer" as not materialized (` +
		`select chain as "chain", address as "address", block_num as "block_num", ` +
		`log_idx as "log_idx", tx_hash as "tx_hash", topic1 as "from", topic2 as "to", ` +
		`abi_word(data, 0) as "tokens" from logs where topic0 = $1 and (chain = $2)) ` +
		`select abi_address("from") as "from", abi_address("to") as "to", ` +
		`abi_uint("tokens") as "tokens" from "transfer" limit $3::int8`
	if cq.SQL != want {
		t.Errorf("sql:\n got %s\nwant %s", cq.SQL, want)
	}
	selector := unhex(t, "ddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")
	if len(cq.Args) != 3 {
		t.Fatalf("args: got %d, want 3", len(cq.Args))
	}
	if !bytes.Equal(cq.Args[0].([]byte), selector) {
		t.Errorf("selector arg: got %x", cq.Args[0])
	}
	if cq.Args[1] != int64(1) || cq.Args[2] != "1" {
		t.Errorf("args: got %v", cq.Args[1:])
	}
	wantCols := []OutputColumn{
		{Name: "from", Type: "bytea"},
		{Name: "to", Type: "bytea"},
		{Name: "tokens", Type: "numeric"},
	}
	if len(cq.Columns) != len(wantCols) {
		t.Fatalf("columns: got %v", cq.Columns)
	}
	for i, want := range wantCols {
		if cq.Columns[i] != want {
			t.Errorf("column %d: got %+v, want %+v", i, cq.Columns[i], want)
		}
	}
}

func TestCompileAggregateWithCursor(t *testing.T) {
	cq := mustCompile(t,
		`select "to", sum(tokens) from transfer where tokens > 100 group by "to"`,
		[]string{transferSig},
		Options{Chains: []uint64{1, 10}, Cursor: Cursor{1: 100}},
	)
	want := `with "transfer" as not materialized (` +
		`select chain as "chain", address as "address", block_num as "block_num", ` +
		`log_idx as "log_idx", tx_hash as "tx_hash", topic2 as "to", ` +
		`abi_word(data, 0) as "tokens" from logs where topic0 = $1 and ` +
		`(chain = $2 and block_num > $3 or chain = $4)) ` +
		`select abi_address("to") as "to", sum(abi_uint("tokens")) from "transfer" ` +
		`where (abi_uint("tokens") > $5::numeric) group by "to"`
	if cq.SQL != want {
		t.Errorf("sql:\n got %s\nwant %s", cq.SQL, want)
	}
	if cq.Args[1] != int64(1) || cq.Args[2] != int64(100) || cq.Args[3] != int64(10) {
		t.Errorf("cursor args: got %v", cq.Args[1:4])
	}
	if len(cq.Chains) != 2 || cq.Chains[0] != 1 || cq.Chains[1] != 10 {
		t.Errorf("chains: got %v", cq.Chains)
	}
}

func TestCompileEqualityRewrite(t *testing.T) {
	addr := "000000000000000000000000000000000000beef"
	cq := mustCompile(t,
		`select tokens from transfer where "from" = 0x`+addr,
		[]string{transferSig},
		Options{Chains: []uint64{1}},
	)
	if !strings.Contains(cq.SQL, `where ("from" = $3::bytea)`) {
		t.Errorf("sql: %s", cq.SQL)
	}
	word := unhex(t, "000000000000000000000000"+addr)
	if !bytes.Equal(cq.Args[2].([]byte), word) {
		t.Errorf("address literal not padded to a word: %x", cq.Args[2])
	}
}

func TestCompileSelectStar(t *testing.T) {
	cq := mustCompile(t,
		`select * from transfer`,
		[]string{transferSig},
		Options{Chains: []uint64{1}},
	)
	names := make([]string, len(cq.Columns))
	for i, c := range cq.Columns {
		names[i] = c.Name
	}
	want := "chain address block_num log_idx tx_hash from to tokens"
	if got := strings.Join(names, " "); got != want {
		t.Errorf("star columns: got %q, want %q", got, want)
	}
	if !strings.Contains(cq.SQL, `abi_uint("transfer"."tokens") as "tokens"`) {
		t.Errorf("sql: %s", cq.SQL)
	}
}

func TestCompileBaseTableJoin(t *testing.T) {
	cq := mustCompile(t,
		`select t.tokens, b.time from transfer t inner join blocks b on t.chain = b.chain and t.block_num = b.num`,
		[]string{transferSig},
		Options{Chains: []uint64{1}},
	)
	if !strings.Contains(cq.SQL, `"blocks" as not materialized (select * from blocks where (chain = $`) {
		t.Errorf("missing blocks predicate: %s", cq.SQL)
	}
	if !strings.Contains(cq.SQL, `from "transfer" as "t" inner join "blocks" as "b" on`) {
		t.Errorf("join: %s", cq.SQL)
	}
}

func TestCompileFunctionTable(t *testing.T) {
	cq := mustCompile(t,
		`select address, amount from mint`,
		[]string{"function mint(address dst, uint256 amount)"},
		Options{Chains: []uint64{1}},
	)
	if !strings.Contains(cq.SQL, `from txs where substr(input, 1, 4) = $1`) {
		t.Errorf("selector predicate: %s", cq.SQL)
	}
	if !strings.Contains(cq.SQL, `abi_word(substr(input, 5), 32) as "amount"`) {
		t.Errorf("data offsets: %s", cq.SQL)
	}
	if !strings.Contains(cq.SQL, `"to" as "address"`) {
		t.Errorf("address mapping: %s", cq.SQL)
	}
	if len(cq.Args[0].([]byte)) != 4 {
		t.Errorf("function selector length: %x", cq.Args[0])
	}
}

func TestCompileIndexedDynamic(t *testing.T) {
	sigs := []string{"Note(string indexed memo, uint256 v)"}
	hash := strings.Repeat("ab", 32)

	_, err := Compile(`select memo from note`, sigs, Options{Chains: []uint64{1}})
	if qe, ok := err.(*Error); !ok || qe.Kind != ErrSignature {
		t.Errorf("selecting hashed parameter: got %v", err)
	}

	cq := mustCompile(t, `select v from note where memo = 0x`+hash, sigs, Options{Chains: []uint64{1}})
	if !strings.Contains(cq.SQL, `("memo" = $3::bytea)`) {
		t.Errorf("hash equality: %s", cq.SQL)
	}

	// star projection leaves the hash out
	cq = mustCompile(t, `select * from note`, sigs, Options{Chains: []uint64{1}})
	for _, col := range cq.Columns {
		if col.Name == "memo" {
			t.Errorf("star projected a hashed parameter")
		}
	}
}

func TestCompileArithmeticDecodes(t *testing.T) {
	cq := mustCompile(t,
		`select tokens from transfer where tokens + 1 > 100`,
		[]string{transferSig},
		Options{Chains: []uint64{1}},
	)
	if !strings.Contains(cq.SQL, `where ((abi_uint("tokens") + $3::numeric) > $4::numeric)`) {
		t.Errorf("arithmetic operand not decoded: %s", cq.SQL)
	}

	// a comparison against anything but a literal also needs values,
	// not raw words
	cq = mustCompile(t,
		`select tokens from transfer where tokens = block_num`,
		[]string{transferSig},
		Options{Chains: []uint64{1}},
	)
	if !strings.Contains(cq.SQL, `where (abi_uint("tokens") = "block_num")`) {
		t.Errorf("mixed equality not decoded: %s", cq.SQL)
	}

	cq = mustCompile(t,
		`select tokens from transfer where tokens in (100, block_num)`,
		[]string{transferSig},
		Options{Chains: []uint64{1}},
	)
	if !strings.Contains(cq.SQL, `(abi_uint("tokens") in ($3::numeric, "block_num"))`) {
		t.Errorf("mixed in list not decoded: %s", cq.SQL)
	}
}

func TestCompileSignedColumnComparison(t *testing.T) {
	sigs := []string{"Delta(int256 a, int256 b)"}
	cq := mustCompile(t,
		`select a from delta where a < b`,
		sigs,
		Options{Chains: []uint64{1}},
	)
	// raw word order is wrong for negative values on both sides
	if !strings.Contains(cq.SQL, `where (abi_int("a") < abi_int("b"))`) {
		t.Errorf("signed comparison not decoded: %s", cq.SQL)
	}

	cq = mustCompile(t, `select a from delta order by a desc`, sigs, Options{Chains: []uint64{1}})
	if !strings.Contains(cq.SQL, `order by abi_int("a") desc`) {
		t.Errorf("signed order by not decoded: %s", cq.SQL)
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		sigs []string
		opts Options
		kind ErrorKind
	}{
		{"unknown table", `select x from swap`, []string{transferSig}, Options{Chains: []uint64{1}}, ErrValidation},
		{"unknown column", `select wat from transfer`, []string{transferSig}, Options{Chains: []uint64{1}}, ErrValidation},
		{"not a select", `delete from transfer`, []string{transferSig}, Options{Chains: []uint64{1}}, ErrValidation},
		{"semicolon", `select tokens from transfer; select 1`, []string{transferSig}, Options{Chains: []uint64{1}}, ErrValidation},
		{"comment", `select tokens from transfer -- hi`, []string{transferSig}, Options{Chains: []uint64{1}}, ErrValidation},
		{"aggregate in where", `select tokens from transfer where sum(tokens) > 1`, []string{transferSig}, Options{Chains: []uint64{1}}, ErrValidation},
		{"nested aggregate", `select sum(count(*)) from transfer`, []string{transferSig}, Options{Chains: []uint64{1}}, ErrValidation},
		{"bad signature", `select 1 from transfer`, []string{"Transfer(uint7 x)"}, Options{Chains: []uint64{1}}, ErrSignature},
		{"duplicate table", `select tokens from transfer`, []string{transferSig, "transfer(bool ok)"}, Options{Chains: []uint64{1}}, ErrBind},
		{"shadowed storage table", `select 1 from logs`, []string{"logs(uint256 x)"}, Options{Chains: []uint64{1}}, ErrBind},
		{"no chain", `select tokens from transfer`, []string{transferSig}, Options{}, ErrValidation},
		{"sum of address", `select sum("from") from transfer`, []string{transferSig}, Options{Chains: []uint64{1}}, ErrValidation},
		{"ordered address compare", `select tokens from transfer where "from" > 0x00`, []string{transferSig}, Options{Chains: []uint64{1}}, ErrValidation},
		{"arithmetic on address", `select tokens from transfer where "from" + 1 > 2`, []string{transferSig}, Options{Chains: []uint64{1}}, ErrValidation},
		{"short address literal", `select tokens from transfer where "from" = 0xbeef`, []string{transferSig}, Options{Chains: []uint64{1}}, ErrValidation},
		{"ambiguous column", `select tokens from transfer a inner join transfer b on a.tx_hash = b.tx_hash`, []string{transferSig}, Options{Chains: []uint64{1}}, ErrValidation},
		{"dangling junk", `select tokens from transfer union select 1`, []string{transferSig}, Options{Chains: []uint64{1}}, ErrParse},
		{"unterminated string", `select 'oops from transfer`, []string{transferSig}, Options{Chains: []uint64{1}}, ErrParse},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Compile(tc.src, tc.sigs, tc.opts)
			if err == nil {
				t.Fatalf("expected %s", tc.kind)
			}
			qe, ok := err.(*Error)
			if !ok {
				t.Fatalf("expected *Error, got %T: %v", err, err)
			}
			if qe.Kind != tc.kind {
				t.Errorf("got %s (%s), want %s", qe.Kind, qe.Msg, tc.kind)
			}
		})
	}
}

func TestCompileGroupByAlias(t *testing.T) {
	cq := mustCompile(t,
		`select "to" as dst, count(*) from transfer group by dst order by count(*) desc limit 10`,
		[]string{transferSig},
		Options{Chains: []uint64{1}},
	)
	if !strings.Contains(cq.SQL, `group by "dst"`) {
		t.Errorf("alias in group by: %s", cq.SQL)
	}
	if !strings.Contains(cq.SQL, `order by count(*) desc`) {
		t.Errorf("order by: %s", cq.SQL)
	}
	if cq.Columns[0].Name != "dst" || cq.Columns[1].Type != "int8" {
		t.Errorf("columns: %+v", cq.Columns)
	}
}
