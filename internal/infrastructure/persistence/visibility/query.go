// Package visibility builds the predicates that decide which invoices are live.
// Every store query and mutation on active invoices starts from Active so the
// soft-delete filter cannot be forgotten at a call site.
package visibility

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/garyjia/invoice-ledger/internal/domain/entity"
)

// ActivePredicate is the SQL condition for non-deleted rows
const ActivePredicate = "deleted_at IS NULL"

// Dialect selects the placeholder style
type Dialect int

const (
	// SQLite uses ? placeholders
	SQLite Dialect = iota
	// Postgres uses $n placeholders
	Postgres
)

// Query accumulates conditions and their arguments
type Query struct {
	dialect Dialect
	conds   []string
	args    []any
}

// Active starts a query restricted to non-deleted rows
func Active(d Dialect) *Query {
	return &Query{dialect: d, conds: []string{ActivePredicate}}
}

// Visible is the in-memory form of ActivePredicate
func Visible(inv *entity.Invoice) bool {
	return inv != nil && !inv.IsDeleted()
}

// Bind registers an argument and returns its placeholder.
// Placeholders are numbered in call order, so bind SET values before adding conditions.
func (q *Query) Bind(v any) string {
	q.args = append(q.args, v)
	if q.dialect == Postgres {
		return fmt.Sprintf("$%d", len(q.args))
	}
	return "?"
}

// Where adds a condition. Each ? in cond is bound to the next value of args.
func (q *Query) Where(cond string, args ...any) *Query {
	if strings.Count(cond, "?") != len(args) {
		panic(fmt.Sprintf("visibility: %d placeholders for %d args in %q", strings.Count(cond, "?"), len(args), cond))
	}

	var b strings.Builder
	i := 0
	for _, r := range cond {
		if r == '?' {
			b.WriteString(q.Bind(args[i]))
			i++
			continue
		}
		b.WriteRune(r)
	}
	q.conds = append(q.conds, b.String())
	return q
}

// StatusIn restricts the query to the given statuses. An empty list adds nothing.
func (q *Query) StatusIn(statuses []entity.InvoiceStatus) *Query {
	if len(statuses) == 0 {
		return q
	}
	marks := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, s := range statuses {
		marks[i] = "?"
		args[i] = string(s)
	}
	return q.Where("status IN ("+strings.Join(marks, ", ")+")", args...)
}

// NumberInSeries restricts the query to numbers of the form <prefix>-<digits>
func (q *Query) NumberInSeries(prefix string) *Query {
	if q.dialect == Postgres {
		return q.Where("invoice_number ~ ?", "^"+regexp.QuoteMeta(prefix)+"-[0-9]+$")
	}
	return q.Where("invoice_number GLOB ? AND substr(invoice_number, ?) NOT GLOB '*[^0-9]*'",
		globEscape(prefix)+"-[0-9]*", SuffixStart(prefix))
}

// Clause renders the WHERE clause with a leading space
func (q *Query) Clause() string {
	return " WHERE " + strings.Join(q.conds, " AND ")
}

// Args returns the bound arguments in placeholder order
func (q *Query) Args() []any {
	return q.args
}

// SuffixStart is the 1-based position of the numeric suffix after prefix and its dash
func SuffixStart(prefix string) int {
	return len(prefix) + 2
}

func globEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']':
			b.WriteByte('[')
			b.WriteRune(r)
			b.WriteByte(']')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
