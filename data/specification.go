package data

// Expression is a SQL boolean expression with "?" placeholders.
type Expression struct {
	SQL  string
	Args []any
}

// Specification is a predicate over T that can also be rendered as a
// WHERE clause.
type Specification[T any] interface {
	IsSatisfiedBy(candidate T) bool
	ToExpression() Expression
}

type whereSpec[T any] struct {
	expr  Expression
	match func(T) bool
}

// Where builds a specification from a SQL fragment and the equivalent Go
// predicate. A nil predicate matches everything in memory.
func Where[T any](sql string, match func(T) bool, args ...any) Specification[T] {
	return whereSpec[T]{expr: Expression{SQL: sql, Args: args}, match: match}
}

func (s whereSpec[T]) IsSatisfiedBy(candidate T) bool {
	return s.match == nil || s.match(candidate)
}

func (s whereSpec[T]) ToExpression() Expression {
	return s.expr
}

type andSpec[T any] struct{ left, right Specification[T] }

// And matches when both specifications match.
func And[T any](left, right Specification[T]) Specification[T] {
	return andSpec[T]{left: left, right: right}
}

func (s andSpec[T]) IsSatisfiedBy(candidate T) bool {
	return s.left.IsSatisfiedBy(candidate) && s.right.IsSatisfiedBy(candidate)
}

func (s andSpec[T]) ToExpression() Expression {
	return combine("AND", s.left.ToExpression(), s.right.ToExpression())
}

type orSpec[T any] struct{ left, right Specification[T] }

// Or matches when either specification matches.
func Or[T any](left, right Specification[T]) Specification[T] {
	return orSpec[T]{left: left, right: right}
}

func (s orSpec[T]) IsSatisfiedBy(candidate T) bool {
	return s.left.IsSatisfiedBy(candidate) || s.right.IsSatisfiedBy(candidate)
}

func (s orSpec[T]) ToExpression() Expression {
	return combine("OR", s.left.ToExpression(), s.right.ToExpression())
}

type notSpec[T any] struct{ inner Specification[T] }

// Not inverts a specification.
func Not[T any](inner Specification[T]) Specification[T] {
	return notSpec[T]{inner: inner}
}

func (s notSpec[T]) IsSatisfiedBy(candidate T) bool {
	return !s.inner.IsSatisfiedBy(candidate)
}

func (s notSpec[T]) ToExpression() Expression {
	e := s.inner.ToExpression()
	return Expression{SQL: "NOT (" + e.SQL + ")", Args: e.Args}
}

func combine(op string, l, r Expression) Expression {
	args := make([]any, 0, len(l.Args)+len(r.Args))
	args = append(args, l.Args...)
	args = append(args, r.Args...)
	return Expression{SQL: "(" + l.SQL + ") " + op + " (" + r.SQL + ")", Args: args}
}
