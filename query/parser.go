package query

var reservedWords = map[string]bool{
	"select": true, "distinct": true, "from": true, "where": true,
	"group": true, "having": true, "order": true, "limit": true,
	"offset": true, "as": true, "and": true, "or": true, "not": true,
	"on": true, "join": true, "inner": true, "left": true, "right": true,
	"full": true, "outer": true, "asc": true, "desc": true, "by": true,
	"between": true, "like": true, "ilike": true, "in": true, "is": true,
	"null": true, "true": true, "false": true, "exists": true,
	"union": true, "intersect": true, "except": true, "with": true,
	"case": true, "when": true, "then": true, "else": true, "end": true,
}

var aggregateFuncs = map[string]bool{
	"count": true, "sum": true, "avg": true, "min": true, "max": true,
}

type parser struct {
	toks []token
	i    int
}

func parseQuery(src string) (*selectStmt, *Error) {
	toks, err := lexQuery(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	stmt, err := p.parseSelect()
	if err != nil {
		return nil, err
	}
	if p.cur().kind != tokEOF {
		return nil, errf(ErrParse, p.cur().pos, "unexpected %q after end of query", p.cur().text)
	}
	return stmt, nil
}

func (p *parser) cur() token  { return p.toks[p.i] }
func (p *parser) next() token { t := p.toks[p.i]; p.i++; return t }

func (p *parser) word(w string) bool {
	if p.cur().kind == tokWord && p.cur().text == w {
		p.i++
		return true
	}
	return false
}

func (p *parser) op(o string) bool {
	if p.cur().kind == tokOp && p.cur().text == o {
		p.i++
		return true
	}
	return false
}

func (p *parser) expectWord(w string) *Error {
	if !p.word(w) {
		return errf(ErrParse, p.cur().pos, "expected %q, got %q", w, p.describe())
	}
	return nil
}

func (p *parser) expect(k tokenKind, what string) *Error {
	if p.cur().kind != k {
		return errf(ErrParse, p.cur().pos, "expected %s, got %q", what, p.describe())
	}
	p.i++
	return nil
}

func (p *parser) describe() string {
	t := p.cur()
	if t.kind == tokEOF {
		return "end of query"
	}
	if t.raw != "" {
		return t.raw
	}
	return t.text
}

func (p *parser) parseSelect() (*selectStmt, *Error) {
	stmt := &selectStmt{pos: p.cur().pos}
	if err := p.expectWord("select"); err != nil {
		return nil, err
	}
	if p.word("distinct") {
		stmt.distinct = true
	}
	for {
		item, err := p.parseSelectItem()
		if err != nil {
			return nil, err
		}
		stmt.items = append(stmt.items, *item)
		if p.cur().kind != tokComma {
			break
		}
		p.i++
	}
	if err := p.expectWord("from"); err != nil {
		return nil, err
	}
	for {
		fi, err := p.parseFromItem()
		if err != nil {
			return nil, err
		}
		stmt.from = append(stmt.from, *fi)
		if p.cur().kind != tokComma {
			break
		}
		p.i++
	}
	if p.word("where") {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.where = e
	}
	if p.word("group") {
		if err := p.expectWord("by"); err != nil {
			return nil, err
		}
		for {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			stmt.groupBy = append(stmt.groupBy, e)
			if p.cur().kind != tokComma {
				break
			}
			p.i++
		}
	}
	if p.word("having") {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.having = e
	}
	if p.word("order") {
		if err := p.expectWord("by"); err != nil {
			return nil, err
		}
		for {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			oi := orderItem{expr: e}
			if p.word("desc") {
				oi.desc = true
			} else {
				p.word("asc")
			}
			stmt.orderBy = append(stmt.orderBy, oi)
			if p.cur().kind != tokComma {
				break
			}
			p.i++
		}
	}
	if p.word("limit") {
		n, err := p.parseNumber("limit")
		if err != nil {
			return nil, err
		}
		stmt.limit = n
	}
	if p.word("offset") {
		n, err := p.parseNumber("offset")
		if err != nil {
			return nil, err
		}
		stmt.offset = n
	}
	return stmt, nil
}

func (p *parser) parseNumber(clause string) (expr, *Error) {
	if p.cur().kind != tokNumber {
		return nil, errf(ErrParse, p.cur().pos, "%s expects a number, got %q", clause, p.describe())
	}
	t := p.next()
	return &numberLit{pos: t.pos, value: t.text}, nil
}

func (p *parser) parseSelectItem() (*selectItem, *Error) {
	pos := p.cur().pos
	if p.op("*") {
		return &selectItem{pos: pos, star: true}, nil
	}
	// qualified star: t.*
	if p.i+2 < len(p.toks) && p.cur().kind == tokWord && !reservedWords[p.cur().text] &&
		p.toks[p.i+1].kind == tokDot && p.toks[p.i+2].kind == tokOp && p.toks[p.i+2].text == "*" {
		t := p.next()
		p.i += 2
		return &selectItem{pos: pos, star: true, starTable: t.text}, nil
	}
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	item := &selectItem{pos: pos, expr: e}
	if p.word("as") {
		alias, err := p.parseIdent("alias")
		if err != nil {
			return nil, err
		}
		item.alias = alias
	} else if p.cur().kind == tokQuoted || p.cur().kind == tokWord && !reservedWords[p.cur().text] {
		alias, _ := p.parseIdent("alias")
		item.alias = alias
	}
	return item, nil
}

func (p *parser) parseIdent(what string) (string, *Error) {
	t := p.cur()
	switch {
	case t.kind == tokQuoted:
		p.i++
		return t.text, nil
	case t.kind == tokWord && !reservedWords[t.text]:
		p.i++
		return t.text, nil
	}
	return "", errf(ErrParse, t.pos, "expected %s, got %q", what, p.describe())
}

func (p *parser) parseFromItem() (*fromItem, *Error) {
	bracketed := false
	if p.cur().kind == tokLBrack {
		bracketed = true
		p.i++
	}
	tn, err := p.parseTableName()
	if err != nil {
		return nil, err
	}
	fi := &fromItem{table: tn}
	for {
		jt, ok := p.peekJoinType()
		if !ok {
			break
		}
		jc := joinClause{pos: p.cur().pos, joinType: jt}
		p.consumeJoinType()
		right, err := p.parseTableName()
		if err != nil {
			return nil, err
		}
		jc.table = right
		if err := p.expectWord("on"); err != nil {
			return nil, err
		}
		on, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		jc.on = on
		fi.joins = append(fi.joins, jc)
	}
	if bracketed {
		if err := p.expect(tokRBrack, "']'"); err != nil {
			return nil, err
		}
	}
	return fi, nil
}

func (p *parser) peekJoinType() (string, bool) {
	t := p.cur()
	if t.kind != tokWord {
		return "", false
	}
	switch t.text {
	case "join", "inner":
		return "inner", true
	case "left", "right", "full":
		return t.text, true
	}
	return "", false
}

func (p *parser) consumeJoinType() {
	if p.cur().text != "join" {
		p.i++ // inner, left, right, full
		p.word("outer")
	}
	p.word("join")
}

func (p *parser) parseTableName() (*tableName, *Error) {
	pos := p.cur().pos
	name, err := p.parseIdent("table name")
	if err != nil {
		return nil, err
	}
	tn := &tableName{pos: pos, name: name}
	if p.word("as") {
		alias, err := p.parseIdent("table alias")
		if err != nil {
			return nil, err
		}
		tn.alias = alias
	} else if p.cur().kind == tokWord && !reservedWords[p.cur().text] {
		alias, _ := p.parseIdent("table alias")
		tn.alias = alias
	}
	return tn, nil
}

// expression precedence, loosest first:
// or, and, not, comparison, + -, * / %, ^, unary, primary

func (p *parser) parseExpr() (expr, *Error) {
	return p.parseOr()
}

func (p *parser) parseOr() (expr, *Error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		pos := p.cur().pos
		if !p.word("or") {
			return left, nil
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &binaryExpr{pos: pos, op: "or", left: left, right: right}
	}
}

func (p *parser) parseAnd() (expr, *Error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for {
		pos := p.cur().pos
		if !p.word("and") {
			return left, nil
		}
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &binaryExpr{pos: pos, op: "and", left: left, right: right}
	}
}

func (p *parser) parseNot() (expr, *Error) {
	pos := p.cur().pos
	if p.word("not") {
		e, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &unaryExpr{pos: pos, op: "not", operand: e}, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (expr, *Error) {
	left, err := p.parseAdd()
	if err != nil {
		return nil, err
	}
	t := p.cur()
	if t.kind == tokOp {
		switch t.text {
		case "<", ">", "=", "<=", ">=", "<>":
			p.i++
			right, err := p.parseAdd()
			if err != nil {
				return nil, err
			}
			return &binaryExpr{pos: t.pos, op: t.text, left: left, right: right}, nil
		}
	}
	negated := false
	if t.kind == tokWord && t.text == "not" &&
		p.toks[p.i+1].kind == tokWord &&
		(p.toks[p.i+1].text == "between" || p.toks[p.i+1].text == "like" ||
			p.toks[p.i+1].text == "ilike" || p.toks[p.i+1].text == "in") {
		negated = true
		p.i++
		t = p.cur()
	}
	switch {
	case p.word("between"):
		low, err := p.parseAdd()
		if err != nil {
			return nil, err
		}
		if err := p.expectWord("and"); err != nil {
			return nil, err
		}
		high, err := p.parseAdd()
		if err != nil {
			return nil, err
		}
		return &betweenExpr{pos: t.pos, operand: left, negated: negated, low: low, high: high}, nil
	case p.word("like"), p.word("ilike"):
		op := p.toks[p.i-1].text
		right, err := p.parseAdd()
		if err != nil {
			return nil, err
		}
		var e expr = &binaryExpr{pos: t.pos, op: op, left: left, right: right}
		if negated {
			e = &unaryExpr{pos: t.pos, op: "not", operand: e}
		}
		return e, nil
	case p.word("in"):
		return p.parseIn(left, negated, t.pos)
	case p.word("is"):
		neg := p.word("not")
		if err := p.expectWord("null"); err != nil {
			return nil, err
		}
		return &isNullExpr{pos: t.pos, operand: left, negated: neg}, nil
	}
	return left, nil
}

func (p *parser) parseIn(left expr, negated bool, pos int) (expr, *Error) {
	if err := p.expect(tokLParen, "'('"); err != nil {
		return nil, err
	}
	e := &inExpr{pos: pos, operand: left, negated: negated}
	if p.cur().kind == tokWord && p.cur().text == "select" {
		sub, err := p.parseSelect()
		if err != nil {
			return nil, err
		}
		e.sub = sub
	} else {
		for {
			item, err := p.parseAdd()
			if err != nil {
				return nil, err
			}
			e.list = append(e.list, item)
			if p.cur().kind != tokComma {
				break
			}
			p.i++
		}
	}
	if err := p.expect(tokRParen, "')'"); err != nil {
		return nil, err
	}
	return e, nil
}

func (p *parser) parseAdd() (expr, *Error) {
	left, err := p.parseMul()
	if err != nil {
		return nil, err
	}
	for {
		t := p.cur()
		if t.kind != tokOp || t.text != "+" && t.text != "-" {
			return left, nil
		}
		p.i++
		right, err := p.parseMul()
		if err != nil {
			return nil, err
		}
		left = &binaryExpr{pos: t.pos, op: t.text, left: left, right: right}
	}
}

func (p *parser) parseMul() (expr, *Error) {
	left, err := p.parseExp()
	if err != nil {
		return nil, err
	}
	for {
		t := p.cur()
		if t.kind != tokOp || t.text != "*" && t.text != "/" && t.text != "%" {
			return left, nil
		}
		p.i++
		right, err := p.parseExp()
		if err != nil {
			return nil, err
		}
		left = &binaryExpr{pos: t.pos, op: t.text, left: left, right: right}
	}
}

func (p *parser) parseExp() (expr, *Error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	t := p.cur()
	if t.kind == tokOp && t.text == "^" {
		p.i++
		right, err := p.parseExp() // right associative
		if err != nil {
			return nil, err
		}
		return &binaryExpr{pos: t.pos, op: "^", left: left, right: right}, nil
	}
	return left, nil
}

func (p *parser) parseUnary() (expr, *Error) {
	t := p.cur()
	if t.kind == tokOp && (t.text == "-" || t.text == "+") {
		p.i++
		e, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		// fold signs into number literals so they rewrite like any literal
		if n, ok := e.(*numberLit); ok && n.value[0] != '-' {
			if t.text == "-" {
				n.value = "-" + n.value
				n.pos = t.pos
			}
			return n, nil
		}
		return &unaryExpr{pos: t.pos, op: t.text, operand: e}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (expr, *Error) {
	t := p.cur()
	switch t.kind {
	case tokNumber:
		p.i++
		return &numberLit{pos: t.pos, value: t.text}, nil
	case tokString:
		p.i++
		return &stringLit{pos: t.pos, value: t.text}, nil
	case tokHex:
		p.i++
		return &hexLit{pos: t.pos, value: t.blob}, nil
	case tokQuoted:
		return p.parseColumnRef()
	case tokLParen:
		p.i++
		if p.cur().kind == tokWord && p.cur().text == "select" {
			sub, err := p.parseSelect()
			if err != nil {
				return nil, err
			}
			if err := p.expect(tokRParen, "')'"); err != nil {
				return nil, err
			}
			return &subqueryExpr{pos: t.pos, sub: sub}, nil
		}
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
		return e, nil
	case tokWord:
		switch t.text {
		case "true", "false":
			p.i++
			return &boolLit{pos: t.pos, value: t.text == "true"}, nil
		case "null":
			p.i++
			return &nullLit{pos: t.pos}, nil
		case "exists":
			p.i++
			if err := p.expect(tokLParen, "'('"); err != nil {
				return nil, err
			}
			sub, err := p.parseSelect()
			if err != nil {
				return nil, err
			}
			if err := p.expect(tokRParen, "')'"); err != nil {
				return nil, err
			}
			return &existsExpr{pos: t.pos, sub: sub}, nil
		}
		if aggregateFuncs[t.text] && p.toks[p.i+1].kind == tokLParen {
			return p.parseFuncCall()
		}
		if reservedWords[t.text] {
			return nil, errf(ErrParse, t.pos, "unexpected keyword %q", t.text)
		}
		return p.parseColumnRef()
	}
	return nil, errf(ErrParse, t.pos, "unexpected %q", p.describe())
}

func (p *parser) parseFuncCall() (expr, *Error) {
	t := p.next()
	fc := &funcCall{pos: t.pos, name: t.text}
	p.i++ // (
	if fc.name == "count" && p.cur().kind == tokOp && p.cur().text == "*" {
		p.i++
		fc.star = true
	} else {
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		fc.args = append(fc.args, arg)
	}
	if err := p.expect(tokRParen, "')'"); err != nil {
		return nil, err
	}
	return fc, nil
}

func (p *parser) parseColumnRef() (expr, *Error) {
	t := p.cur()
	ref := &columnRef{pos: t.pos, quoted: t.kind == tokQuoted}
	name, err := p.parseIdent("column name")
	if err != nil {
		return nil, err
	}
	ref.name = name
	if p.cur().kind == tokDot {
		p.i++
		ref.table = ref.name
		ref.quoted = p.cur().kind == tokQuoted
		ref.name, err = p.parseIdent("column name")
		if err != nil {
			return nil, err
		}
	}
	return ref, nil
}
