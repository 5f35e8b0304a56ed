package filter

import "slices"

// Condition is the machine name of a filter test. It is what travels in a Spec;
// display text comes from Label.
type Condition string

const (
	Contains               Condition = "Contains"
	DoesNotContain         Condition = "DoesNotContain"
	StartsWith             Condition = "StartsWith"
	EndsWith               Condition = "EndsWith"
	IsEqualTo              Condition = "IsEqualTo"
	IsNotEqualTo           Condition = "IsNotEqualTo"
	IsNullOrEmpty          Condition = "IsNullOrEmpty"
	IsNotNullOrEmpty       Condition = "IsNotNullOrEmpty"
	IsGreaterThan          Condition = "IsGreaterThan"
	IsGreaterThanOrEqualTo Condition = "IsGreaterThanOrEqualTo"
	IsLessThan             Condition = "IsLessThan"
	IsLessThanOrEqualTo    Condition = "IsLessThanOrEqualTo"
	IsNull                 Condition = "IsNull"
	IsNotNull              Condition = "IsNotNull"
	True                   Condition = "True"
	False                  Condition = "False"
)

var (
	stringConditions = []Condition{
		Contains, DoesNotContain, StartsWith, EndsWith,
		IsEqualTo, IsNotEqualTo, IsNullOrEmpty, IsNotNullOrEmpty,
	}
	orderedConditions = []Condition{
		IsEqualTo, IsNotEqualTo,
		IsGreaterThan, IsGreaterThanOrEqualTo, IsLessThan, IsLessThanOrEqualTo,
		IsNull, IsNotNull,
	}
	booleanConditions = []Condition{True, False, IsNull, IsNotNull}
	equalityConditions = []Condition{IsEqualTo, IsNotEqualTo, IsNull, IsNotNull}
)

var kindConditions = map[Kind][]Condition{
	KindString:       stringConditions,
	KindNumber:       orderedConditions,
	KindDate:         orderedConditions,
	KindBoolean:      booleanConditions,
	KindEnum:         equalityConditions,
	KindCustomLookup: equalityConditions,
}

// Conditions lists the conditions supported by kind in display order.
func Conditions(kind Kind) []Condition {
	return slices.Clone(kindConditions[kind])
}

// Supports reports whether kind accepts c.
func Supports(kind Kind, c Condition) bool {
	return slices.Contains(kindConditions[kind], c)
}

// IsNullity reports whether c tests the terminal value for nil or emptiness.
// Such conditions take no operand and do not guard the terminal segment.
func IsNullity(c Condition) bool {
	switch c {
	case IsNull, IsNotNull, IsNullOrEmpty, IsNotNullOrEmpty:
		return true
	}
	return false
}

// TakesOperand reports whether c compares against a user-supplied value.
func TakesOperand(c Condition) bool {
	return !IsNullity(c) && c != True && c != False
}

var labels = map[Condition]string{
	Contains:               "Contains",
	DoesNotContain:         "Does not contain",
	StartsWith:             "Starts with",
	EndsWith:               "Ends with",
	IsEqualTo:              "Is equal to",
	IsNotEqualTo:           "Is not equal to",
	IsNullOrEmpty:          "Is null or empty",
	IsNotNullOrEmpty:       "Is not null or empty",
	IsGreaterThan:          "Is greater than",
	IsGreaterThanOrEqualTo: "Is greater than or equal to",
	IsLessThan:             "Is less than",
	IsLessThanOrEqualTo:    "Is less than or equal to",
	IsNull:                 "Is null",
	IsNotNull:              "Is not null",
	True:                   "True",
	False:                  "False",
}

// Label returns the display text of c.
func Label(c Condition) string {
	if l, ok := labels[c]; ok {
		return l
	}
	return string(c)
}
