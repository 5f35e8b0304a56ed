package filter

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedCondition is returned when a condition is not part of a
	// kind's vocabulary.
	ErrUnsupportedCondition = errors.New("unsupported condition")

	// ErrOperandConversion is returned when operand text cannot be converted
	// to the field's type.
	ErrOperandConversion = errors.New("operand conversion failure")

	// ErrUnrecognizedPredicate is returned by Recover for trees that no
	// factory of the kind could have built.
	ErrUnrecognizedPredicate = errors.New("unrecognized predicate")
)

// ConditionError reports a condition outside a kind's vocabulary.
type ConditionError struct {
	Kind      Kind
	Condition Condition
}

func (e *ConditionError) Error() string {
	return fmt.Sprintf("filter: %v: %q for %s", ErrUnsupportedCondition, e.Condition, e.Kind)
}

func (e *ConditionError) Unwrap() error { return ErrUnsupportedCondition }

// OperandError reports operand text that could not be converted.
type OperandError struct {
	Kind Kind
	Text string
	Err  error
}

func (e *OperandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("filter: %v: %q as %s: %v", ErrOperandConversion, e.Text, e.Kind, e.Err)
	}
	return fmt.Sprintf("filter: %v: %q as %s", ErrOperandConversion, e.Text, e.Kind)
}

func (e *OperandError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrOperandConversion}
	}
	return []error{ErrOperandConversion, e.Err}
}

func unrecognized(kind Kind, desc string) error {
	return fmt.Errorf("filter: %w for %s: %s", ErrUnrecognizedPredicate, kind, desc)
}
