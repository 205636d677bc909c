// Package database assembles parameterized list queries for the report
// repositories. Identifiers pass through pgx sanitization; values always
// bind as parameters.
package database

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
)

// ConditionType selects how a Condition renders into the WHERE clause.
type ConditionType string

const (
	Equal              ConditionType = "="
	NotEqual           ConditionType = "!="
	GreaterThan        ConditionType = ">"
	LessThan           ConditionType = "<"
	LessThanOrEqual    ConditionType = "<="
	GreaterThanOrEqual ConditionType = ">="
	// Any expands a slice value into "field = ANY (ARRAY[$n, ...])". List
	// filters ride array parameters; there is no IN support.
	Any ConditionType = "ANY"
	// Custom carries raw SQL built through WhereRawCond.
	Custom ConditionType = "CUSTOM"
)

const (
	defaultLimit  = -1
	defaultOffset = -1
)

// Condition is one WHERE predicate.
type Condition struct {
	Field    string
	Type     ConditionType
	Value    any
	rawQuery *string
}

// WhereCond builds a predicate on a single column.
func WhereCond(field string, condType ConditionType, value any) Condition {
	if condType == Custom {
		//nolint:forbidigo // panic prevents misuse; custom conditions must provide raw SQL via WhereRawCond.
		panic("Use WhereRawCond for Custom type")
	}
	return Condition{
		rawQuery: nil,
		Field:    field,
		Type:     condType,
		Value:    value,
	}
}

// WhereRawCond builds a raw-SQL predicate. Placeholders are written $1..$n
// against params and renumbered into the final statement's sequence.
func WhereRawCond(rawQuery string, params ...any) Condition {
	queryStr := rawQuery
	var value any = params
	switch len(params) {
	case 0:
		value = nil
	case 1:
		value = params[0]
	}
	return Condition{
		Field:    "",
		Type:     Custom,
		rawQuery: &queryStr,
		Value:    value,
	}
}

// OrderSpec is one ORDER BY column with its direction.
type OrderSpec struct {
	Column    string
	Direction string
}

// ListQueryOptions collects the pieces of one list statement.
type ListQueryOptions struct {
	Table      string
	Columns    []string
	CountOnly  bool
	Conditions []Condition
	OrderBys   []OrderSpec
	Limit      int
	Offset     int
}

type ListQueryOption func(*ListQueryOptions)

func NewListQueryOptions(table string, opts ...ListQueryOption) *ListQueryOptions {
	options := &ListQueryOptions{
		Table:      table,
		Columns:    []string{},
		CountOnly:  false,
		Conditions: []Condition{},
		OrderBys:   nil,
		Limit:      defaultLimit,
		Offset:     defaultOffset,
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// WithColumns sets the columns to select. Names are sanitized as plain
// identifiers; expressions and aliases belong in repository SQL, not here.
func WithColumns(cols ...string) ListQueryOption {
	return func(o *ListQueryOptions) {
		o.Columns = cols
	}
}

// WithCondition adds a single condition.
func WithCondition(cond Condition) ListQueryOption {
	return func(o *ListQueryOptions) {
		o.Conditions = append(o.Conditions, cond)
	}
}

// WithConditions sets the entire list of conditions.
func WithConditions(conds ...Condition) ListQueryOption {
	return func(o *ListQueryOptions) {
		o.Conditions = conds
	}
}

// WithOrderBy adds an ordering column and direction. Repeated calls compose
// left to right, so secondary tie-break columns follow the primary.
func WithOrderBy(column, direction string) ListQueryOption {
	return func(o *ListQueryOptions) {
		o.OrderBys = append(o.OrderBys, OrderSpec{Column: column, Direction: direction})
	}
}

// WithLimit sets the limit. Accepts 0.
func WithLimit(limit int) ListQueryOption {
	return func(o *ListQueryOptions) {
		if limit >= 0 {
			o.Limit = limit
		}
	}
}

// WithOffset sets the offset. Accepts 0.
func WithOffset(offset int) ListQueryOption {
	return func(o *ListQueryOptions) {
		if offset >= 0 {
			o.Offset = offset
		}
	}
}

// WithCountOnly sets the query to count only.
func WithCountOnly() ListQueryOption {
	return func(o *ListQueryOptions) {
		o.CountOnly = true
	}
}

func sanitizeIdentifier(ident string) string {
	return pgx.Identifier{ident}.Sanitize()
}

// BuildListQuery renders the options into a statement and its bind args.
//
//	options := NewListQueryOptions("report_jobs",
//		WithColumns("job_id", "status", "report_type"),
//		WithCondition(WhereCond("status", Equal, "QUEUED")),
//		WithCondition(WhereCond("report_type", Any, []string{"DAILY_SUMMARY", "COUNTY_DAILY"})),
//		WithOrderBy("created_at", "DESC"),
//		WithLimit(50),
//	)
//	query, args := BuildListQuery(options)
func BuildListQuery(options *ListQueryOptions) (string, []any) {
	if options == nil {
		return "", nil
	}

	var query strings.Builder
	query.WriteString(buildSelectClause(options))
	query.WriteString("FROM ")
	query.WriteString(sanitizeIdentifier(options.Table))

	whereClause, whereArgs, nextParamCount := buildWhereClause(options.Conditions, 1)
	if whereClause != "" {
		query.WriteString(" ")
		query.WriteString(whereClause)
	}

	// Ordering and pagination are meaningless for a count.
	if options.CountOnly {
		return query.String(), whereArgs
	}

	tailClause, finalArgs := buildOrderAndPagination(options, nextParamCount, whereArgs)
	query.WriteString(tailClause)

	return query.String(), finalArgs
}

func buildSelectClause(options *ListQueryOptions) string {
	if options.CountOnly {
		return "SELECT COUNT(*) "
	}
	if len(options.Columns) == 0 {
		return "SELECT * "
	}

	cols := make([]string, len(options.Columns))
	for i, col := range options.Columns {
		cols[i] = sanitizeIdentifier(col)
	}
	return "SELECT " + strings.Join(cols, ", ") + " "
}

func buildOrderAndPagination(options *ListQueryOptions, paramCount int, args []any) (string, []any) {
	var clause strings.Builder

	written := 0
	for _, spec := range options.OrderBys {
		if spec.Column == "" {
			continue
		}
		if written == 0 {
			clause.WriteString(" ORDER BY ")
		} else {
			clause.WriteString(", ")
		}
		written++
		clause.WriteString(sanitizeIdentifier(spec.Column))
		if dir := strings.ToUpper(spec.Direction); dir == "ASC" || dir == "DESC" {
			clause.WriteString(" ")
			clause.WriteString(dir)
		}
	}

	if options.Limit != defaultLimit {
		fmt.Fprintf(&clause, " LIMIT $%d", paramCount)
		args = append(args, options.Limit)
		paramCount++
	}
	if options.Offset != defaultOffset {
		fmt.Fprintf(&clause, " OFFSET $%d", paramCount)
		args = append(args, options.Offset)
	}

	return clause.String(), args
}

func buildWhereClause(inputConditions []Condition, startParamIndex int) (string, []any, int) {
	conditions := make([]string, 0, len(inputConditions))
	args := []any{}
	paramCount := startParamIndex

	for _, cond := range inputConditions {
		conditionStr, newArgs, nextParamCount := renderCondition(cond, paramCount)
		if conditionStr != "" {
			conditions = append(conditions, conditionStr)
			args = append(args, newArgs...)
			paramCount = nextParamCount
		}
	}

	if len(conditions) == 0 {
		return "", args, paramCount
	}
	return "WHERE " + strings.Join(conditions, " AND "), args, paramCount
}

// renderCondition renders one predicate and returns the SQL fragment, its
// args, and the next parameter index. Unknown types and empty fields drop
// the predicate.
func renderCondition(cond Condition, paramCount int) (string, []any, int) {
	switch cond.Type {
	case Custom:
		return renderCustomCondition(cond, paramCount)
	case Any:
		return renderAnyCondition(cond, paramCount)
	case Equal, NotEqual, GreaterThan, LessThan, LessThanOrEqual, GreaterThanOrEqual:
		if cond.Field == "" {
			return "", nil, paramCount
		}
		fragment := fmt.Sprintf("%s %s $%d", sanitizeIdentifier(cond.Field), cond.Type, paramCount)
		return fragment, []any{cond.Value}, paramCount + 1
	}
	return "", nil, paramCount
}

// renderAnyCondition expands a slice value into "field = ANY (ARRAY[...])".
// Empty and non-slice values drop the predicate rather than matching nothing.
func renderAnyCondition(cond Condition, paramCount int) (string, []any, int) {
	if cond.Field == "" {
		return "", nil, paramCount
	}

	rv := reflect.ValueOf(cond.Value)
	if rv.Kind() != reflect.Slice || rv.Len() == 0 {
		return "", nil, paramCount
	}

	placeholders := make([]string, rv.Len())
	args := make([]any, rv.Len())
	for i := range rv.Len() {
		placeholders[i] = fmt.Sprintf("$%d", paramCount)
		args[i] = rv.Index(i).Interface()
		paramCount++
	}

	fragment := fmt.Sprintf(
		"%s = ANY (ARRAY[%s])",
		sanitizeIdentifier(cond.Field),
		strings.Join(placeholders, ", "),
	)
	return fragment, args, paramCount
}

var rePlaceholder = regexp.MustCompile(`\$(\d+)`)

// renderCustomCondition renumbers the raw query's $n placeholders into the
// statement's parameter sequence. A placeholder repeated in the raw SQL
// binds its value once; out-of-range placeholders stay untouched.
func renderCustomCondition(cond Condition, paramCount int) (string, []any, int) {
	if cond.rawQuery == nil || *cond.rawQuery == "" {
		return "", nil, paramCount
	}
	conditionStr := *cond.rawQuery

	if cond.Value == nil {
		return conditionStr, nil, paramCount
	}

	var params []any
	if slice, ok := cond.Value.([]any); ok {
		params = slice
	} else {
		params = []any{cond.Value}
	}

	args := []any{}
	idxMap := make(map[int]int)
	conditionStr = rePlaceholder.ReplaceAllStringFunc(conditionStr, func(m string) string {
		n, err := strconv.Atoi(m[1:])
		if err != nil {
			return m
		}
		if _, seen := idxMap[n]; !seen {
			if n < 1 || n > len(params) {
				return m
			}
			idxMap[n] = paramCount
			args = append(args, params[n-1])
			paramCount++
		}
		return fmt.Sprintf("$%d", idxMap[n])
	})

	return conditionStr, args, paramCount
}
