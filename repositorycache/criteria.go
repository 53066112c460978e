package repositorycache

import (
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

// renderDB only formats queries. It has no connection and never executes
// anything.
var renderDB = bun.NewDB(nil, sqlitedialect.New())

// renderCriteria returns the SQL that criteria produce on a select for T.
// Criteria are closures, so the rendered query is the only stable view of
// what they filter on: SelectBy("status", "=", x) renders differently for
// every x. ok is false when the criteria cannot be rendered, in which case
// the read must not be cached.
func renderCriteria[T any](criteria []repository.SelectCriteria) (sql string, ok bool) {
	if len(criteria) == 0 {
		return "", true
	}
	if sql, ok = renderSelect(criteria, (*T)(nil)); ok {
		return sql, true
	}
	// T is not a bun model, render the bare clauses instead
	return renderSelect(criteria, nil)
}

func renderSelect(criteria []repository.SelectCriteria, model any) (sql string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			sql, ok = "", false
		}
	}()

	q := renderDB.NewSelect()
	if model != nil {
		q = q.Model(model)
	}
	for _, criterion := range criteria {
		if criterion != nil {
			q = criterion(q)
		}
	}

	b, err := q.AppendQuery(renderDB.Formatter(), nil)
	if err != nil {
		return "", false
	}
	return string(b), true
}
