package store

type Op string

const (
	OpEq      Op = "eq"
	OpNeq     Op = "neq"
	OpIn      Op = "in"
	OpIsNull  Op = "is.null"
	OpNotNull Op = "not.is.null"
)

type Filter struct {
	Column string
	Op     Op
	Value  any
	Values []string
}

func Eq(column string, value any) Filter {
	return Filter{Column: column, Op: OpEq, Value: value}
}

func Neq(column string, value any) Filter {
	return Filter{Column: column, Op: OpNeq, Value: value}
}

func In(column string, values ...string) Filter {
	return Filter{Column: column, Op: OpIn, Values: values}
}

func IsNull(column string) Filter {
	return Filter{Column: column, Op: OpIsNull}
}

func NotNull(column string) Filter {
	return Filter{Column: column, Op: OpNotNull}
}
