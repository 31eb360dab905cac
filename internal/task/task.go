// Package task classifies operator messages into a closed set of task types
// and maps each type to its model parameters.
package task

import "fmt"

// Type is the intent category of a message. The zero value means "no prior task".
type Type string

const (
	GeneralQuestion Type = "general_question"
	ProductInfo     Type = "product_info"
	OrderStatus     Type = "order_status"
	SalesReport     Type = "sales_report"
	Marketing       Type = "marketing"
	Inventory       Type = "inventory"
	CustomerService Type = "customer_service"
	Technical       Type = "technical"
	StoreAdvice     Type = "store_advice"
	Error           Type = "error"
)

// All lists every task type in declaration order.
var All = []Type{
	GeneralQuestion,
	ProductInfo,
	OrderStatus,
	SalesReport,
	Marketing,
	Inventory,
	CustomerService,
	Technical,
	StoreAdvice,
	Error,
}

func (t Type) String() string { return string(t) }

// Valid reports whether t is one of the declared task types.
func (t Type) Valid() bool {
	for _, v := range All {
		if t == v {
			return true
		}
	}
	return false
}

// Parse converts a wire name into a Type.
func Parse(s string) (Type, error) {
	t := Type(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown task type %q", s)
	}
	return t, nil
}
