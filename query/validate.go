package query

import (
	"math/big"

	"github.com/indexsupply/golden-axe/abi"
)

// argRef replaces a literal the rewriter has coerced into a bound
// parameter with a concrete driver value.
type argRef struct {
	pos   int
	value interface{}
}

func (e *argRef) exprPos() int { return e.pos }

// scopeTable is one FROM entry visible to column resolution, keyed by its
// alias (or table name when unaliased).
type scopeTable struct {
	key   string
	vt    *virtualTable // nil for base tables
	base  string        // base table name when vt is nil
	cols  map[string]*boundColumn
	order []string
}

type scope struct {
	parent *scope
	tables []*scopeTable
}

func (s *scope) lookupTable(key string) *scopeTable {
	for sc := s; sc != nil; sc = sc.parent {
		for _, t := range sc.tables {
			if t.key == key {
				return t
			}
		}
	}
	return nil
}

type exprCtx struct {
	aggOK      bool // aggregate calls allowed here
	inAgg      bool
	selectTop  bool // top node of a select item
	eqOperand  bool // operand of an equality test
	allowAlias bool // bare names may refer to select list aliases
	aliases    map[string]bool
}

type compiler struct {
	reg      *registry
	opts     Options
	chains   []uint64
	used     map[string]map[string]bool // virtual table -> touched param columns
	usedBase map[string]bool
}

func (c *compiler) markUsed(vt *virtualTable, col string) {
	m := c.used[vt.name]
	if m == nil {
		m = make(map[string]bool)
		c.used[vt.name] = m
	}
	m[col] = true
}

// newScopeTable resolves one FROM entry against the signature registry and
// the storage schema.
func (c *compiler) newScopeTable(tn *tableName) (*scopeTable, *Error) {
	key := tn.name
	if tn.alias != "" {
		key = tn.alias
	}
	if vt := c.reg.table(tn.name); vt != nil {
		tn.vt = vt
		if c.used[vt.name] == nil {
			c.used[vt.name] = make(map[string]bool)
		}
		return &scopeTable{key: key, vt: vt, cols: vt.byName, order: columnOrder(vt)}, nil
	}
	cols, ok := baseTables[tn.name]
	if !ok {
		return nil, errf(ErrValidation, tn.pos, "unknown table %q; declare an event or function signature for it", tn.name)
	}
	c.usedBase[tn.name] = true
	st := &scopeTable{key: key, base: tn.name, cols: make(map[string]*boundColumn), order: cols}
	for _, name := range cols {
		st.cols[name] = &boundColumn{name: name, tag: baseTag(tn.name, name)}
	}
	return st, nil
}

func columnOrder(vt *virtualTable) []string {
	names := make([]string, 0, len(vt.columns))
	for _, col := range vt.columns {
		names = append(names, col.name)
	}
	return names
}

func baseTag(table, col string) string {
	switch col {
	case "chain", "num", "block_num", "log_idx", "idx", "time":
		return "int8"
	case "value":
		return "numeric"
	}
	return "bytea"
}

// checkStmt validates one select statement and rewrites comparisons
// against decoded parameters in place.
func (c *compiler) checkStmt(stmt *selectStmt, parent *scope) *Error {
	sc := &scope{parent: parent}
	seen := make(map[string]bool)
	addTable := func(tn *tableName) *Error {
		st, err := c.newScopeTable(tn)
		if err != nil {
			return err
		}
		if seen[st.key] {
			return errf(ErrValidation, tn.pos, "table name %q used twice; alias one of them", st.key)
		}
		seen[st.key] = true
		sc.tables = append(sc.tables, st)
		return nil
	}
	for i := range stmt.from {
		fi := &stmt.from[i]
		if err := addTable(fi.table); err != nil {
			return err
		}
		for j := range fi.joins {
			if err := addTable(fi.joins[j].table); err != nil {
				return err
			}
		}
	}
	// join conditions see the scope after all tables are added
	for i := range stmt.from {
		for j := range stmt.from[i].joins {
			jc := &stmt.from[i].joins[j]
			if err := c.checkExpr(jc.on, sc, exprCtx{}); err != nil {
				return err
			}
		}
	}
	aliases := make(map[string]bool)
	for i := range stmt.items {
		item := &stmt.items[i]
		if item.star {
			if item.starTable != "" && sc.lookupTable(item.starTable) == nil {
				return errf(ErrValidation, item.pos, "unknown table %q", item.starTable)
			}
			c.markStarUsed(sc, item.starTable)
			continue
		}
		if err := c.checkExpr(item.expr, sc, exprCtx{aggOK: true, selectTop: true}); err != nil {
			return err
		}
		if item.alias != "" {
			aliases[item.alias] = true
		}
	}
	if stmt.where != nil {
		if err := c.checkExpr(stmt.where, sc, exprCtx{}); err != nil {
			return err
		}
		if err := rejectAggregates(stmt.where, "where"); err != nil {
			return err
		}
	}
	for _, e := range stmt.groupBy {
		ctx := exprCtx{eqOperand: true, allowAlias: true, aliases: aliases}
		if err := c.checkExpr(e, sc, ctx); err != nil {
			return err
		}
		if err := rejectAggregates(e, "group by"); err != nil {
			return err
		}
	}
	if stmt.having != nil {
		if err := c.checkExpr(stmt.having, sc, exprCtx{aggOK: true}); err != nil {
			return err
		}
	}
	for _, oi := range stmt.orderBy {
		ctx := exprCtx{aggOK: true, allowAlias: true, aliases: aliases}
		if err := c.checkExpr(oi.expr, sc, ctx); err != nil {
			return err
		}
		// sort on decoded values; raw word order is wrong for signed ints
		if ref := paramRef(oi.expr); ref != nil && ref.col.typ != nil {
			switch ref.col.typ.Kind {
			case abi.KindUint, abi.KindInt:
				ref.wrapHere = true
			}
		}
	}
	return nil
}

func (c *compiler) markStarUsed(sc *scope, tableKey string) {
	for _, st := range sc.tables {
		if tableKey != "" && st.key != tableKey {
			continue
		}
		if st.vt != nil {
			for _, col := range st.vt.columns {
				if !col.hashOnly {
					c.markUsed(st.vt, col.name)
				}
			}
		}
	}
}

func (c *compiler) checkExpr(e expr, sc *scope, ctx exprCtx) *Error {
	switch n := e.(type) {
	case *columnRef:
		return c.resolveColumn(n, sc, ctx)
	case *numberLit, *stringLit, *hexLit, *boolLit, *nullLit, *argRef:
		return nil
	case *starExpr:
		return errf(ErrValidation, n.pos, "'*' is only allowed in the select list")
	case *unaryExpr:
		inner := exprCtx{aggOK: ctx.aggOK, inAgg: ctx.inAgg}
		if err := c.checkExpr(n.operand, sc, inner); err != nil {
			return err
		}
		if n.op == "-" {
			if ref := paramRef(n.operand); ref != nil {
				return c.markNumeric(ref, "arithmetic")
			}
		}
		return nil
	case *funcCall:
		return c.checkAggregate(n, sc, ctx)
	case *binaryExpr:
		return c.checkBinary(n, sc, ctx)
	case *betweenExpr:
		return c.checkBetween(n, sc, ctx)
	case *isNullExpr:
		return c.checkExpr(n.operand, sc, exprCtx{aggOK: ctx.aggOK, inAgg: ctx.inAgg})
	case *inExpr:
		return c.checkIn(n, sc, ctx)
	case *existsExpr:
		return c.checkStmt(n.sub, sc)
	case *subqueryExpr:
		if err := c.checkStmt(n.sub, sc); err != nil {
			return err
		}
		if len(n.sub.items) != 1 || n.sub.items[0].star {
			return errf(ErrValidation, n.pos, "scalar subquery must select exactly one column")
		}
		return nil
	}
	return errf(ErrValidation, e.exprPos(), "unsupported expression")
}

func (c *compiler) resolveColumn(ref *columnRef, sc *scope, ctx exprCtx) *Error {
	if ref.table == "" && ctx.allowAlias && ctx.aliases[ref.name] {
		return nil // refers to a select list alias
	}
	var (
		found *scopeTable
		col   *boundColumn
	)
	if ref.table != "" {
		st := sc.lookupTable(ref.table)
		if st == nil {
			return errf(ErrValidation, ref.pos, "unknown table %q", ref.table)
		}
		col = st.cols[ref.name]
		if col == nil {
			return errf(ErrValidation, ref.pos, "table %q has no column %q", ref.table, ref.name)
		}
		found = st
	} else {
	search:
		for s := sc; s != nil; s = s.parent {
			for _, st := range s.tables {
				if cand := st.cols[ref.name]; cand != nil {
					if col != nil {
						return errf(ErrValidation, ref.pos, "column %q is ambiguous: it exists in %q and %q", ref.name, found.key, st.key)
					}
					found, col = st, cand
				}
			}
			if col != nil {
				break search
			}
		}
		if col == nil {
			return errf(ErrValidation, ref.pos, "unknown column %q", ref.name)
		}
	}
	if col.hashOnly && !ctx.eqOperand {
		if ctx.selectTop {
			return errf(ErrSignature, ref.pos, "indexed parameter %q has a dynamic type, only its hash is stored; it cannot be selected", ref.name)
		}
		return errf(ErrSignature, ref.pos, "indexed parameter %q has a dynamic type; it can only be compared for equality", ref.name)
	}
	if col.typ != nil && col.typ.Dynamic() && !col.hashOnly && !ctx.selectTop && !ctx.eqOperand {
		return errf(ErrValidation, ref.pos, "column %q of type %s can only be selected or compared for equality", ref.name, col.typ)
	}
	ref.col = col
	if found.vt != nil {
		c.markUsed(found.vt, col.name)
	}
	return nil
}

func (c *compiler) checkAggregate(n *funcCall, sc *scope, ctx exprCtx) *Error {
	if !ctx.aggOK {
		return errf(ErrValidation, n.pos, "%s() is not allowed here", n.name)
	}
	if ctx.inAgg {
		return errf(ErrValidation, n.pos, "aggregates cannot be nested")
	}
	if n.star {
		return nil
	}
	inner := exprCtx{inAgg: true}
	for _, arg := range n.args {
		if err := c.checkExpr(arg, sc, inner); err != nil {
			return err
		}
		if n.name == "sum" || n.name == "avg" {
			if ref, ok := arg.(*columnRef); ok && ref.col != nil && ref.col.typ != nil {
				k := ref.col.typ.Kind
				if k != abi.KindUint && k != abi.KindInt {
					return errf(ErrValidation, ref.pos, "%s() requires a numeric argument, %q is %s", n.name, ref.name, ref.col.typ)
				}
			}
		}
	}
	return nil
}

func isComparisonOp(op string) bool {
	switch op {
	case "=", "<>", "<", ">", "<=", ">=":
		return true
	}
	return false
}

func isArithmeticOp(op string) bool {
	switch op {
	case "+", "-", "*", "/", "%":
		return true
	}
	return false
}

// decodeInPlace flags a parameter column operand so its decode wrapper is
// applied where the column is referenced, instead of exposing raw words.
func decodeInPlace(e expr) {
	if ref := paramRef(e); ref != nil {
		ref.wrapHere = true
	}
}

func isLiteral(e expr) bool {
	switch e.(type) {
	case *numberLit, *stringLit, *hexLit, *boolLit:
		return true
	}
	return false
}

func paramRef(e expr) *columnRef {
	ref, ok := e.(*columnRef)
	if !ok || ref.col == nil {
		return nil
	}
	if ref.col.typ != nil || ref.col.hashOnly {
		return ref
	}
	return nil
}

func (c *compiler) checkBinary(n *binaryExpr, sc *scope, ctx exprCtx) *Error {
	inner := exprCtx{aggOK: ctx.aggOK, inAgg: ctx.inAgg}
	if n.op == "=" || n.op == "<>" {
		inner.eqOperand = true
	}
	if err := c.checkExpr(n.left, sc, inner); err != nil {
		return err
	}
	if err := c.checkExpr(n.right, sc, inner); err != nil {
		return err
	}
	if isArithmeticOp(n.op) {
		if ref := paramRef(n.left); ref != nil {
			if err := c.markNumeric(ref, "arithmetic"); err != nil {
				return err
			}
		}
		if ref := paramRef(n.right); ref != nil {
			if err := c.markNumeric(ref, "arithmetic"); err != nil {
				return err
			}
		}
		return nil
	}
	if !isComparisonOp(n.op) {
		if n.op == "like" || n.op == "ilike" {
			if paramRef(n.left) != nil || paramRef(n.right) != nil {
				return errf(ErrValidation, n.pos, "%s is not supported on decoded parameters", n.op)
			}
		}
		return nil
	}
	ref, lit := paramRef(n.left), n.right
	if ref == nil {
		ref, lit = paramRef(n.right), n.left
	}
	if ref != nil && isLiteral(lit) {
		if n.op == "=" || n.op == "<>" {
			arg, err := encodeLiteral(lit, ref.col)
			if err != nil {
				return err
			}
			if lit == n.right {
				n.right = arg
			} else {
				n.left = arg
			}
			return nil
		}
		return c.markOrdered(ref)
	}
	// no literal to encode into raw word form: decode parameter operands
	// in place so the comparison happens on values
	if n.op == "=" || n.op == "<>" {
		decodeInPlace(n.left)
		decodeInPlace(n.right)
		return nil
	}
	if ref := paramRef(n.left); ref != nil {
		if err := c.markOrdered(ref); err != nil {
			return err
		}
	}
	if ref := paramRef(n.right); ref != nil {
		if err := c.markOrdered(ref); err != nil {
			return err
		}
	}
	return nil
}

// markNumeric flags a parameter column for in-place decoding so that
// arithmetic and ordered comparisons see numeric values instead of raw
// words. Non numeric parameters cannot take part in either.
func (c *compiler) markNumeric(ref *columnRef, what string) *Error {
	if ref.col.typ == nil {
		return nil
	}
	switch ref.col.typ.Kind {
	case abi.KindUint, abi.KindInt:
		ref.wrapHere = true
		return nil
	}
	return errf(ErrValidation, ref.pos, "%s is not supported for %s parameters", what, ref.col.typ)
}

func (c *compiler) markOrdered(ref *columnRef) *Error {
	return c.markNumeric(ref, "ordered comparison")
}

func (c *compiler) checkBetween(n *betweenExpr, sc *scope, ctx exprCtx) *Error {
	inner := exprCtx{aggOK: ctx.aggOK, inAgg: ctx.inAgg}
	if err := c.checkExpr(n.operand, sc, inner); err != nil {
		return err
	}
	if err := c.checkExpr(n.low, sc, inner); err != nil {
		return err
	}
	if err := c.checkExpr(n.high, sc, inner); err != nil {
		return err
	}
	for _, e := range []expr{n.operand, n.low, n.high} {
		if ref := paramRef(e); ref != nil {
			if err := c.markOrdered(ref); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *compiler) checkIn(n *inExpr, sc *scope, ctx exprCtx) *Error {
	inner := exprCtx{aggOK: ctx.aggOK, inAgg: ctx.inAgg, eqOperand: true}
	if err := c.checkExpr(n.operand, sc, inner); err != nil {
		return err
	}
	if n.sub != nil {
		if err := c.checkStmt(n.sub, sc); err != nil {
			return err
		}
		if len(n.sub.items) != 1 || n.sub.items[0].star {
			return errf(ErrValidation, n.pos, "in subquery must select exactly one column")
		}
		return nil
	}
	ref := paramRef(n.operand)
	allLit := true
	for _, item := range n.list {
		if err := c.checkExpr(item, sc, inner); err != nil {
			return err
		}
		if !isLiteral(item) {
			allLit = false
		}
	}
	if ref == nil {
		return nil
	}
	if allLit {
		for i, item := range n.list {
			arg, err := encodeLiteral(item, ref.col)
			if err != nil {
				return err
			}
			n.list[i] = arg
		}
		return nil
	}
	// a non literal member forces value semantics for the whole list
	ref.wrapHere = true
	for _, item := range n.list {
		decodeInPlace(item)
	}
	return nil
}

func rejectAggregates(e expr, clause string) *Error {
	switch n := e.(type) {
	case *funcCall:
		return errf(ErrValidation, n.pos, "%s() is not allowed in %s", n.name, clause)
	case *binaryExpr:
		if err := rejectAggregates(n.left, clause); err != nil {
			return err
		}
		return rejectAggregates(n.right, clause)
	case *unaryExpr:
		return rejectAggregates(n.operand, clause)
	case *betweenExpr:
		if err := rejectAggregates(n.operand, clause); err != nil {
			return err
		}
		if err := rejectAggregates(n.low, clause); err != nil {
			return err
		}
		return rejectAggregates(n.high, clause)
	case *isNullExpr:
		return rejectAggregates(n.operand, clause)
	case *inExpr:
		if err := rejectAggregates(n.operand, clause); err != nil {
			return err
		}
		for _, item := range n.list {
			if err := rejectAggregates(item, clause); err != nil {
				return err
			}
		}
	}
	return nil
}

// encodeLiteral turns a literal compared against a decoded parameter into
// the byte form stored in that parameter's column.
func encodeLiteral(lit expr, col *boundColumn) (expr, *Error) {
	pos := lit.exprPos()
	fail := func(format string, args ...interface{}) (expr, *Error) {
		return nil, errf(ErrValidation, pos, format, args...)
	}
	if col.hashOnly {
		h, ok := lit.(*hexLit)
		if !ok || len(h.value) != abi.WordLen {
			return fail("parameter %q is stored as a 32 byte hash; compare it against a 0x hash literal", col.name)
		}
		return &argRef{pos: pos, value: h.value}, nil
	}
	t := col.typ
	switch t.Kind {
	case abi.KindUint, abi.KindInt:
		var v *big.Int
		switch l := lit.(type) {
		case *numberLit:
			var ok bool
			v, ok = new(big.Int).SetString(l.value, 10)
			if !ok {
				return fail("invalid number %q", l.value)
			}
		case *hexLit:
			v = new(big.Int).SetBytes(l.value)
		default:
			return fail("parameter %q expects a numeric literal", col.name)
		}
		if v.BitLen() > 256 {
			return fail("number does not fit in 256 bits")
		}
		word, err := abi.EncodeStatic(v, *t)
		if err != nil {
			return fail("%v", err)
		}
		return &argRef{pos: pos, value: word}, nil
	case abi.KindBool:
		b, ok := lit.(*boolLit)
		if !ok {
			return fail("parameter %q expects true or false", col.name)
		}
		word, _ := abi.EncodeStatic(b.value, *t)
		return &argRef{pos: pos, value: word}, nil
	case abi.KindAddress:
		h, ok := lit.(*hexLit)
		if !ok || len(h.value) != 20 {
			return fail("parameter %q expects a 20 byte 0x address literal", col.name)
		}
		word, _ := abi.EncodeStatic(h.value, *t)
		return &argRef{pos: pos, value: word}, nil
	case abi.KindFixedBytes:
		h, ok := lit.(*hexLit)
		if !ok || len(h.value) != t.Size {
			return fail("parameter %q expects a %d byte 0x literal", col.name, t.Size)
		}
		return &argRef{pos: pos, value: h.value}, nil
	case abi.KindString:
		s, ok := lit.(*stringLit)
		if !ok {
			return fail("parameter %q expects a string literal", col.name)
		}
		return &argRef{pos: pos, value: []byte(s.value)}, nil
	case abi.KindBytes:
		h, ok := lit.(*hexLit)
		if !ok {
			return fail("parameter %q expects a 0x literal", col.name)
		}
		return &argRef{pos: pos, value: h.value}, nil
	}
	return fail("parameter %q of type %s cannot be compared against a literal", col.name, t)
}
