package query

import (
	"fmt"
	"strings"

	"github.com/indexsupply/golden-axe/abi"
)

// boundColumn is one selectable column of a virtual or base table.
type boundColumn struct {
	name     string
	innerSQL string    // expression inside the table's CTE, "" for physical columns
	wrap     string    // decode function applied when the column is projected
	tag      string    // storage type reported in the response column list
	typ      *abi.Type // nil for raw EVM and base table columns
	hashOnly bool      // indexed dynamic param, usable in equality filters only
	trimTo   int       // substr length for fixed bytes shorter than a word
}

// virtualTable is a relation synthesized from one ABI signature. Event
// tables read from logs, function tables from txs.
type virtualTable struct {
	name     string
	source   string // logs or txs
	selector []byte
	sig      *abi.Signature
	columns  []*boundColumn
	byName   map[string]*boundColumn
}

func (vt *virtualTable) column(name string) *boundColumn {
	return vt.byName[name]
}

// base table schemas, mirroring the storage layer
var baseTables = map[string][]string{
	"blocks": {"chain", "num", "hash", "time"},
	"logs":   {"chain", "block_num", "log_idx", "address", "topic0", "topic1", "topic2", "topic3", "data", "tx_hash"},
	"txs":    {"chain", "block_num", "idx", "hash", "from", "to", "input", "value"},
}

// heightColumn names the block height column per base table, used for
// cursor predicates.
func heightColumn(table string) string {
	if table == "blocks" {
		return "num"
	}
	return "block_num"
}

type registry struct {
	tables map[string]*virtualTable
	order  []string
}

// newRegistry parses and binds every signature. Table names are the
// lowercased event or function names; two signatures may not share one.
func newRegistry(sigs []string) (*registry, *Error) {
	r := &registry{tables: make(map[string]*virtualTable)}
	for _, src := range sigs {
		sig, err := abi.ParseSignature(src)
		if err != nil {
			if se, ok := err.(*abi.SignatureError); ok {
				return nil, errf(ErrSignature, se.Pos, "%s", se.Msg)
			}
			return nil, NewError(ErrSignature, "%v", err)
		}
		vt, berr := bindSignature(sig)
		if berr != nil {
			return nil, berr
		}
		if _, dup := r.tables[vt.name]; dup {
			return nil, NewError(ErrBind, "duplicate table %q", vt.name)
		}
		if _, clash := baseTables[vt.name]; clash {
			return nil, NewError(ErrBind, "table %q shadows a storage table", vt.name)
		}
		r.tables[vt.name] = vt
		r.order = append(r.order, vt.name)
	}
	return r, nil
}

func (r *registry) table(name string) *virtualTable {
	if r == nil {
		return nil
	}
	return r.tables[name]
}

// bindSignature derives the virtual table for one parsed signature: the
// fixed EVM columns first, then one column per parameter with its decode
// expression. Indexed parameters map to topic slots in declaration order,
// non-indexed parameters to head words of the data section.
func bindSignature(sig *abi.Signature) (*virtualTable, *Error) {
	vt := &virtualTable{
		name:     strings.ToLower(sig.Name),
		selector: sig.Selector(),
		sig:      sig,
		byName:   make(map[string]*boundColumn),
	}
	idxName := "log_idx"
	addrCol := "address"
	hashCol := "tx_hash"
	if sig.Kind == abi.SigFunction {
		vt.source = "txs"
		idxName = "idx"
		addrCol = `"to"`
		hashCol = "hash"
	} else {
		vt.source = "logs"
	}
	fixed := []*boundColumn{
		{name: "chain", innerSQL: "chain", tag: "int8"},
		{name: "address", innerSQL: addrCol, tag: "bytea"},
		{name: "block_num", innerSQL: "block_num", tag: "int8"},
		{name: idxName, innerSQL: idxName, tag: "int8"},
		{name: "tx_hash", innerSQL: hashCol, tag: "bytea"},
	}
	for _, c := range fixed {
		vt.columns = append(vt.columns, c)
		vt.byName[c.name] = c
	}
	topic := 1
	dataPos := 0
	payload := "data"
	if sig.Kind == abi.SigFunction {
		payload = "substr(input, 5)" // skip the 4 byte selector
	}
	for i := range sig.Params {
		p := &sig.Params[i]
		name := strings.ToLower(p.Name)
		if _, dup := vt.byName[name]; dup {
			return nil, NewError(ErrBind, "column %q declared twice in %q", name, sig.Name)
		}
		col := &boundColumn{name: name, typ: &p.Type}
		if p.Indexed {
			if topic > 3 {
				// three topic slots remain after the selector
				return nil, NewError(ErrBind, "event %q has more than 3 indexed parameters", sig.Name)
			}
			slot := fmt.Sprintf("topic%d", topic)
			topic++
			if p.Type.Dynamic() {
				// the topic holds keccak(value), not the value
				col.innerSQL = slot
				col.hashOnly = true
				col.tag = "bytea"
			} else {
				col.innerSQL = slot
				applyStaticShape(col, &p.Type)
				if col.trimTo > 0 {
					col.innerSQL = fmt.Sprintf("substr(%s, 1, %d)", col.innerSQL, col.trimTo)
				}
			}
		} else {
			switch {
			case p.Type.Dynamic() && p.Type.Kind == abi.KindArray:
				col.innerSQL = fmt.Sprintf("abi_dynamic(%s, %d, 32)", payload, dataPos)
				col.tag = arrayTag(p.Type.Elem)
			case p.Type.Dynamic():
				col.innerSQL = fmt.Sprintf("abi_bytes(abi_dynamic(%s, %d, 1))", payload, dataPos)
				if p.Type.Kind == abi.KindString {
					col.wrap = "abi_string"
					col.tag = "text"
				} else {
					col.tag = "bytea"
				}
			default:
				col.innerSQL = fmt.Sprintf("abi_word(%s, %d)", payload, dataPos*abi.WordLen)
				applyStaticShape(col, &p.Type)
				if col.trimTo > 0 {
					col.innerSQL = fmt.Sprintf("substr(%s, 1, %d)", col.innerSQL, col.trimTo)
				}
			}
			dataPos++
		}
		vt.columns = append(vt.columns, col)
		vt.byName[name] = col
	}
	return vt, nil
}

// applyStaticShape sets the projection wrapper and response tag for a
// single word static column.
func applyStaticShape(col *boundColumn, t *abi.Type) {
	switch t.Kind {
	case abi.KindUint:
		col.wrap = "abi_uint"
		col.tag = "numeric"
	case abi.KindInt:
		col.wrap = "abi_int"
		col.tag = "numeric"
	case abi.KindBool:
		col.wrap = "abi_bool"
		col.tag = "bool"
	case abi.KindAddress:
		col.wrap = "abi_address"
		col.tag = "bytea"
	case abi.KindFixedBytes:
		col.tag = "bytea"
		if t.Size < abi.WordLen {
			col.trimTo = t.Size
		}
	}
}

func arrayTag(elem *abi.Type) string {
	switch elem.Kind {
	case abi.KindUint, abi.KindInt:
		return "numeric[]"
	case abi.KindBool:
		return "bool[]"
	default:
		return "bytea[]"
	}
}
