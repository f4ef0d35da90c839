package query

// Closed expression and statement forms for the accepted dialect. Anything
// the parser cannot express here is rejected up front, which is what makes
// the rewriter safe to run against user input.

type expr interface {
	exprPos() int
}

type columnRef struct {
	pos    int
	table  string // qualifier as written, "" when bare
	name   string
	quoted bool

	// filled during validation
	col      *boundColumn
	wrapHere bool // decode in place for ordered comparisons
}

type numberLit struct {
	pos   int
	value string
}

type stringLit struct {
	pos   int
	value string
}

type hexLit struct {
	pos   int
	value []byte
}

type boolLit struct {
	pos   int
	value bool
}

type nullLit struct {
	pos int
}

type starExpr struct {
	pos   int
	table string // "" for a bare *
}

type binaryExpr struct {
	pos         int
	op          string // ^ * / % + - < > = <= >= <> and or like ilike
	left, right expr
}

type unaryExpr struct {
	pos     int
	op      string // - + not
	operand expr
}

type funcCall struct {
	pos  int
	name string // count sum avg min max
	star bool   // count(*)
	args []expr
}

type betweenExpr struct {
	pos       int
	operand   expr
	negated   bool
	low, high expr
}

type isNullExpr struct {
	pos     int
	operand expr
	negated bool
}

type inExpr struct {
	pos     int
	operand expr
	negated bool
	list    []expr      // nil when sub is set
	sub     *selectStmt //
}

type existsExpr struct {
	pos     int
	negated bool
	sub     *selectStmt
}

type subqueryExpr struct {
	pos int
	sub *selectStmt
}

func (e *columnRef) exprPos() int    { return e.pos }
func (e *numberLit) exprPos() int    { return e.pos }
func (e *stringLit) exprPos() int    { return e.pos }
func (e *hexLit) exprPos() int       { return e.pos }
func (e *boolLit) exprPos() int      { return e.pos }
func (e *nullLit) exprPos() int      { return e.pos }
func (e *starExpr) exprPos() int     { return e.pos }
func (e *binaryExpr) exprPos() int   { return e.pos }
func (e *unaryExpr) exprPos() int    { return e.pos }
func (e *funcCall) exprPos() int     { return e.pos }
func (e *betweenExpr) exprPos() int  { return e.pos }
func (e *isNullExpr) exprPos() int   { return e.pos }
func (e *inExpr) exprPos() int       { return e.pos }
func (e *existsExpr) exprPos() int   { return e.pos }
func (e *subqueryExpr) exprPos() int { return e.pos }

type selectItem struct {
	pos       int
	expr      expr   // nil when star
	alias     string // "" when unaliased
	star      bool
	starTable string
}

type joinClause struct {
	pos      int
	joinType string // inner left right full
	table    *tableName
	on       expr
}

type tableName struct {
	pos   int
	name  string
	alias string

	vt *virtualTable // filled during validation, nil for base tables
}

type fromItem struct {
	table *tableName
	joins []joinClause
}

type orderItem struct {
	expr expr
	desc bool
}

type selectStmt struct {
	pos      int
	distinct bool
	items    []selectItem
	from     []fromItem
	where    expr
	groupBy  []expr
	having   expr
	orderBy  []orderItem
	limit    expr // numberLit or nil
	offset   expr
}
