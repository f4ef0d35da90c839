package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/indexsupply/golden-axe/abi"
)

// Options scope a compilation to a set of chains and an optional resume
// cursor with exclusive lower bounds per chain.
type Options struct {
	Chains []uint64
	Cursor Cursor
}

// OutputColumn describes one column of the result set. Type is the
// storage type tag reported to clients; it is empty when the type is only
// known to the database. Elem is set for array valued columns, whose
// cells arrive as raw ABI payloads and are decoded client side.
type OutputColumn struct {
	Name string    `json:"name"`
	Type string    `json:"type"`
	Elem *abi.Type `json:"-"`
}

// CompiledQuery is ready to execute: a single SQL statement with every
// user supplied value bound as a parameter.
type CompiledQuery struct {
	SQL     string
	Args    []interface{}
	Columns []OutputColumn
	Chains  []uint64
}

// Compile parses the signatures and the restricted SQL, validates the
// query against the virtual tables the signatures define, and rewrites it
// into a statement over the log and transaction storage.
func Compile(src string, sigs []string, opts Options) (*CompiledQuery, error) {
	reg, cerr := newRegistry(sigs)
	if cerr != nil {
		return nil, cerr
	}
	stmt, cerr := parseQuery(src)
	if cerr != nil {
		return nil, cerr
	}
	c := &compiler{
		reg:      reg,
		opts:     opts,
		used:     make(map[string]map[string]bool),
		usedBase: make(map[string]bool),
	}
	set := make(map[uint64]bool)
	for _, chain := range opts.Chains {
		set[chain] = true
	}
	for chain := range opts.Cursor {
		set[chain] = true
	}
	for chain := range set {
		c.chains = append(c.chains, chain)
	}
	sort.Slice(c.chains, func(i, j int) bool { return c.chains[i] < c.chains[j] })
	if len(c.chains) == 0 {
		return nil, NewError(ErrValidation, "at least one chain is required")
	}
	if cerr := c.checkStmt(stmt, nil); cerr != nil {
		return nil, cerr
	}
	g := &gen{c: c}
	g.writeCTEs()
	g.renderStmt(stmt, true)
	return &CompiledQuery{
		SQL:     g.b.String(),
		Args:    g.args,
		Columns: g.cols,
		Chains:  c.chains,
	}, nil
}

type gen struct {
	c    *compiler
	b    strings.Builder
	args []interface{}
	cols []OutputColumn
}

func (g *gen) bind(v interface{}) string {
	g.args = append(g.args, v)
	return fmt.Sprintf("$%d", len(g.args))
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// chainPredicate emits the per chain block window: strictly after the
// cursor position for chains the cursor knows, unbounded otherwise.
func (g *gen) chainPredicate(heightCol string) string {
	var parts []string
	for _, chain := range g.c.chains {
		if num, ok := g.c.opts.Cursor[chain]; ok {
			parts = append(parts, fmt.Sprintf("chain = %s and %s > %s",
				g.bind(int64(chain)), heightCol, g.bind(int64(num))))
		} else {
			parts = append(parts, fmt.Sprintf("chain = %s", g.bind(int64(chain))))
		}
	}
	return "(" + strings.Join(parts, " or ") + ")"
}

// writeCTEs emits one NOT MATERIALIZED CTE per referenced virtual table,
// then one per referenced storage table. Virtual tables come first so
// their bodies read the physical relations, not the filtered CTEs.
func (g *gen) writeCTEs() {
	g.b.WriteString("with ")
	first := true
	sep := func() {
		if !first {
			g.b.WriteString(", ")
		}
		first = false
	}
	for _, name := range g.c.reg.order {
		used, ok := g.c.used[name]
		if !ok {
			continue
		}
		vt := g.c.reg.tables[name]
		sep()
		g.b.WriteString(quoteIdent(name))
		g.b.WriteString(" as not materialized (select ")
		wrote := false
		for i, col := range vt.columns {
			if i >= 5 && !used[col.name] { // the first five are the fixed EVM columns
				continue
			}
			if wrote {
				g.b.WriteString(", ")
			}
			wrote = true
			g.b.WriteString(col.innerSQL)
			g.b.WriteString(" as ")
			g.b.WriteString(quoteIdent(col.name))
		}
		g.b.WriteString(" from ")
		g.b.WriteString(vt.source)
		g.b.WriteString(" where ")
		if vt.sig.Kind == abi.SigFunction {
			g.b.WriteString("substr(input, 1, 4) = ")
		} else {
			g.b.WriteString("topic0 = ")
		}
		g.b.WriteString(g.bind(vt.selector))
		g.b.WriteString(" and ")
		g.b.WriteString(g.chainPredicate(heightColumn(vt.source)))
		g.b.WriteString(")")
	}
	baseNames := make([]string, 0, len(g.c.usedBase))
	for name := range g.c.usedBase {
		baseNames = append(baseNames, name)
	}
	sort.Strings(baseNames)
	for _, name := range baseNames {
		sep()
		g.b.WriteString(quoteIdent(name))
		g.b.WriteString(" as not materialized (select * from ")
		g.b.WriteString(name)
		g.b.WriteString(" where ")
		g.b.WriteString(g.chainPredicate(heightColumn(name)))
		g.b.WriteString(")")
	}
	g.b.WriteString(" ")
}

func (g *gen) renderStmt(stmt *selectStmt, top bool) {
	sc := g.scopeFor(stmt)
	g.b.WriteString("select ")
	if stmt.distinct {
		g.b.WriteString("distinct ")
	}
	first := true
	item := func() {
		if !first {
			g.b.WriteString(", ")
		}
		first = false
	}
	for i := range stmt.items {
		it := &stmt.items[i]
		if it.star {
			for _, st := range sc.tables {
				if it.starTable != "" && st.key != it.starTable {
					continue
				}
				for _, name := range st.order {
					col := st.cols[name]
					if col.hashOnly {
						continue
					}
					item()
					g.renderProjection(st.key, col)
					if top {
						g.cols = append(g.cols, columnMeta(col))
					}
				}
			}
			continue
		}
		item()
		g.renderExpr(it.expr, true)
		switch {
		case it.alias != "":
			g.b.WriteString(" as ")
			g.b.WriteString(quoteIdent(it.alias))
		default:
			// keep the decoded column's name visible in the result
			if ref, ok := it.expr.(*columnRef); ok && ref.col != nil && ref.col.wrap != "" {
				g.b.WriteString(" as ")
				g.b.WriteString(quoteIdent(ref.name))
			}
		}
		if top {
			g.cols = append(g.cols, itemMeta(it))
		}
	}
	g.b.WriteString(" from ")
	for i := range stmt.from {
		if i > 0 {
			g.b.WriteString(", ")
		}
		fi := &stmt.from[i]
		g.renderTable(fi.table)
		for j := range fi.joins {
			jc := &fi.joins[j]
			g.b.WriteString(" ")
			g.b.WriteString(jc.joinType)
			g.b.WriteString(" join ")
			g.renderTable(jc.table)
			g.b.WriteString(" on ")
			g.renderExpr(jc.on, false)
		}
	}
	if stmt.where != nil {
		g.b.WriteString(" where ")
		g.renderExpr(stmt.where, false)
	}
	if len(stmt.groupBy) > 0 {
		g.b.WriteString(" group by ")
		for i, e := range stmt.groupBy {
			if i > 0 {
				g.b.WriteString(", ")
			}
			g.renderExpr(e, false)
		}
	}
	if stmt.having != nil {
		g.b.WriteString(" having ")
		g.renderExpr(stmt.having, false)
	}
	if len(stmt.orderBy) > 0 {
		g.b.WriteString(" order by ")
		for i, oi := range stmt.orderBy {
			if i > 0 {
				g.b.WriteString(", ")
			}
			g.renderExpr(oi.expr, false)
			if oi.desc {
				g.b.WriteString(" desc")
			}
		}
	}
	if stmt.limit != nil {
		g.b.WriteString(" limit ")
		g.b.WriteString(g.bind(stmt.limit.(*numberLit).value))
		g.b.WriteString("::int8")
	}
	if stmt.offset != nil {
		g.b.WriteString(" offset ")
		g.b.WriteString(g.bind(stmt.offset.(*numberLit).value))
		g.b.WriteString("::int8")
	}
}

// scopeFor rebuilds the resolution scope for rendering; table bindings
// were resolved during validation.
func (g *gen) scopeFor(stmt *selectStmt) *scope {
	sc := &scope{}
	add := func(tn *tableName) {
		key := tn.name
		if tn.alias != "" {
			key = tn.alias
		}
		st := &scopeTable{key: key, vt: tn.vt}
		if tn.vt != nil {
			st.cols = tn.vt.byName
			st.order = columnOrder(tn.vt)
		} else {
			st.base = tn.name
			st.cols = make(map[string]*boundColumn)
			st.order = baseTables[tn.name]
			for _, name := range st.order {
				st.cols[name] = &boundColumn{name: name, tag: baseTag(tn.name, name)}
			}
		}
		sc.tables = append(sc.tables, st)
	}
	for i := range stmt.from {
		add(stmt.from[i].table)
		for j := range stmt.from[i].joins {
			add(stmt.from[i].joins[j].table)
		}
	}
	return sc
}

func (g *gen) renderTable(tn *tableName) {
	g.b.WriteString(quoteIdent(tn.name))
	if tn.alias != "" {
		g.b.WriteString(" as ")
		g.b.WriteString(quoteIdent(tn.alias))
	}
}

func (g *gen) renderProjection(tableKey string, col *boundColumn) {
	ref := quoteIdent(tableKey) + "." + quoteIdent(col.name)
	if col.wrap != "" {
		g.b.WriteString(col.wrap)
		g.b.WriteString("(")
		g.b.WriteString(ref)
		g.b.WriteString(") as ")
		g.b.WriteString(quoteIdent(col.name))
		return
	}
	g.b.WriteString(ref)
}

func (g *gen) renderExpr(e expr, wrapped bool) {
	switch n := e.(type) {
	case *columnRef:
		ref := quoteIdent(n.name)
		if n.table != "" {
			ref = quoteIdent(n.table) + "." + ref
		}
		if n.col != nil && n.col.wrap != "" && (wrapped || n.wrapHere) {
			g.b.WriteString(n.col.wrap)
			g.b.WriteString("(")
			g.b.WriteString(ref)
			g.b.WriteString(")")
			return
		}
		g.b.WriteString(ref)
	// literals always travel as parameters; the casts give the
	// placeholders a type when context alone cannot
	case *argRef:
		g.b.WriteString(g.bind(n.value))
		g.b.WriteString("::bytea")
	case *numberLit:
		g.b.WriteString(g.bind(n.value))
		g.b.WriteString("::numeric")
	case *stringLit:
		g.b.WriteString(g.bind(n.value))
		g.b.WriteString("::text")
	case *hexLit:
		g.b.WriteString(g.bind(n.value))
		g.b.WriteString("::bytea")
	case *boolLit:
		g.b.WriteString(g.bind(n.value))
		g.b.WriteString("::bool")
	case *nullLit:
		g.b.WriteString("null")
	case *binaryExpr:
		g.b.WriteString("(")
		g.renderExpr(n.left, wrapped)
		g.b.WriteString(" ")
		g.b.WriteString(n.op)
		g.b.WriteString(" ")
		g.renderExpr(n.right, wrapped)
		g.b.WriteString(")")
	case *unaryExpr:
		g.b.WriteString("(")
		g.b.WriteString(n.op)
		g.b.WriteString(" ")
		g.renderExpr(n.operand, wrapped)
		g.b.WriteString(")")
	case *funcCall:
		g.b.WriteString(n.name)
		g.b.WriteString("(")
		if n.star {
			g.b.WriteString("*")
		} else {
			for i, arg := range n.args {
				if i > 0 {
					g.b.WriteString(", ")
				}
				g.renderExpr(arg, true)
			}
		}
		g.b.WriteString(")")
	case *betweenExpr:
		g.b.WriteString("(")
		g.renderExpr(n.operand, wrapped)
		if n.negated {
			g.b.WriteString(" not")
		}
		g.b.WriteString(" between ")
		g.renderExpr(n.low, wrapped)
		g.b.WriteString(" and ")
		g.renderExpr(n.high, wrapped)
		g.b.WriteString(")")
	case *isNullExpr:
		g.b.WriteString("(")
		g.renderExpr(n.operand, wrapped)
		if n.negated {
			g.b.WriteString(" is not null)")
		} else {
			g.b.WriteString(" is null)")
		}
	case *inExpr:
		g.b.WriteString("(")
		g.renderExpr(n.operand, wrapped)
		if n.negated {
			g.b.WriteString(" not")
		}
		g.b.WriteString(" in (")
		if n.sub != nil {
			g.renderStmt(n.sub, false)
		} else {
			for i, item := range n.list {
				if i > 0 {
					g.b.WriteString(", ")
				}
				g.renderExpr(item, wrapped)
			}
		}
		g.b.WriteString("))")
	case *existsExpr:
		if n.negated {
			g.b.WriteString("not ")
		}
		g.b.WriteString("exists (")
		g.renderStmt(n.sub, false)
		g.b.WriteString(")")
	case *subqueryExpr:
		g.b.WriteString("(")
		g.renderStmt(n.sub, false)
		g.b.WriteString(")")
	}
}

func columnMeta(col *boundColumn) OutputColumn {
	oc := OutputColumn{Name: col.name, Type: col.tag}
	if col.typ != nil && col.typ.Kind == abi.KindArray {
		oc.Elem = col.typ.Elem
	}
	return oc
}

func itemMeta(it *selectItem) OutputColumn {
	oc := exprMeta(it.expr)
	if it.alias != "" {
		oc.Name = it.alias
	}
	return oc
}

func exprMeta(e expr) OutputColumn {
	switch n := e.(type) {
	case *columnRef:
		if n.col != nil {
			oc := columnMeta(n.col)
			oc.Name = n.name
			return oc
		}
		return OutputColumn{Name: n.name}
	case *funcCall:
		oc := OutputColumn{Name: n.name}
		switch n.name {
		case "count":
			oc.Type = "int8"
		case "sum", "avg":
			oc.Type = "numeric"
		case "min", "max":
			if len(n.args) == 1 {
				oc.Type = exprMeta(n.args[0]).Type
			}
		}
		return oc
	case *numberLit:
		return OutputColumn{Name: "column", Type: "numeric"}
	case *stringLit:
		return OutputColumn{Name: "column", Type: "text"}
	case *hexLit:
		return OutputColumn{Name: "column", Type: "bytea"}
	case *boolLit:
		return OutputColumn{Name: "column", Type: "bool"}
	case *binaryExpr:
		switch n.op {
		case "and", "or", "=", "<>", "<", ">", "<=", ">=", "like", "ilike":
			return OutputColumn{Name: "column", Type: "bool"}
		}
		return OutputColumn{Name: "column", Type: "numeric"}
	case *unaryExpr:
		if n.op == "not" {
			return OutputColumn{Name: "column", Type: "bool"}
		}
		return exprMeta(n.operand)
	case *betweenExpr, *isNullExpr, *inExpr, *existsExpr:
		return OutputColumn{Name: "column", Type: "bool"}
	}
	return OutputColumn{Name: "column"}
}
