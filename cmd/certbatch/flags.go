package main

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/pflag"
)

// choiceValue is a string flag restricted to a fixed set of values, matched
// case-insensitively and stored in its canonical spelling.
type choiceValue struct {
	value   string
	choices []string
}

var _ pflag.Value = (*choiceValue)(nil)

func newChoiceValue(def string, choices ...string) *choiceValue {
	return &choiceValue{value: def, choices: choices}
}

func (v *choiceValue) String() string { return v.value }
func (v *choiceValue) Type() string   { return "string" }

func (v *choiceValue) Set(s string) error {
	i := slices.IndexFunc(v.choices, func(c string) bool { return strings.EqualFold(c, s) })
	if i < 0 {
		return fmt.Errorf("must be one of %s", v.Choices())
	}
	v.value = v.choices[i]
	return nil
}

// Choices returns the allowed values for help text.
func (v *choiceValue) Choices() string {
	return strings.Join(v.choices, ", ")
}
