package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// OptionKind tags the scalar type held by an OptionValue.
type OptionKind string

// Option scalar kinds.
const (
	OptionString OptionKind = "string"
	OptionNumber OptionKind = "number"
	OptionBool   OptionKind = "bool"
)

// OptionValue is a tagged scalar execution option value.
type OptionValue struct {
	kind OptionKind
	str  string
	num  float64
	b    bool
}

// StringOption creates a string-valued option.
func StringOption(v string) OptionValue { return OptionValue{kind: OptionString, str: v} }

// NumberOption creates a number-valued option.
func NumberOption(v float64) OptionValue { return OptionValue{kind: OptionNumber, num: v} }

// BoolOption creates a boolean-valued option.
func BoolOption(v bool) OptionValue { return OptionValue{kind: OptionBool, b: v} }

// Kind returns the scalar kind.
func (v OptionValue) Kind() OptionKind { return v.kind }

// AsString returns the value when Kind is OptionString.
func (v OptionValue) AsString() (string, bool) { return v.str, v.kind == OptionString }

// AsNumber returns the value when Kind is OptionNumber.
func (v OptionValue) AsNumber() (float64, bool) { return v.num, v.kind == OptionNumber }

// AsBool returns the value when Kind is OptionBool.
func (v OptionValue) AsBool() (bool, bool) { return v.b, v.kind == OptionBool }

// String renders the value for logs and wire transports.
func (v OptionValue) String() string {
	switch v.kind {
	case OptionNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case OptionBool:
		return strconv.FormatBool(v.b)
	default:
		return v.str
	}
}

// MarshalJSON encodes the value as a bare JSON scalar.
func (v OptionValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case OptionNumber:
		return json.Marshal(v.num)
	case OptionBool:
		return json.Marshal(v.b)
	case OptionString:
		return json.Marshal(v.str)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes a bare JSON scalar. Objects, arrays and null are rejected.
func (v *OptionValue) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch x := raw.(type) {
	case string:
		*v = StringOption(x)
	case float64:
		*v = NumberOption(x)
	case bool:
		*v = BoolOption(x)
	default:
		return fmt.Errorf("option value must be a string, number, or boolean")
	}
	return nil
}

// ParseOptionValue interprets a textual value as bool (only "true" or "false"),
// then number, then string.
func ParseOptionValue(s string) OptionValue {
	if s == "true" || s == "false" {
		return BoolOption(s == "true")
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return NumberOption(f)
	}
	return StringOption(s)
}

// ExecutionOptions maps option names to scalar values.
type ExecutionOptions map[string]OptionValue

// Names returns the option names in sorted order.
func (o ExecutionOptions) Names() []string {
	names := make([]string, 0, len(o))
	for name := range o {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OptionSpec declares an option a provider understands.
type OptionSpec struct {
	Name        string     `json:"name"`
	Kind        OptionKind `json:"kind"`
	Description string     `json:"description,omitempty"`
}

// ValidateExecutionOptions checks every option against the known set. An empty
// known set accepts any scalar option.
func ValidateExecutionOptions(opts ExecutionOptions, known []OptionSpec) error {
	for _, name := range opts.Names() {
		if name == "" {
			return ErrValidation("option name is required")
		}
		if opts[name].Kind() == "" {
			return ErrValidation("option %q has no value", name)
		}
	}
	if len(known) == 0 {
		return nil
	}
	index := make(map[string]OptionKind, len(known))
	for _, spec := range known {
		index[spec.Name] = spec.Kind
	}
	for _, name := range opts.Names() {
		kind, ok := index[name]
		if !ok {
			return ErrValidation("unknown execution option %q", name)
		}
		if got := opts[name].Kind(); got != kind {
			return ErrValidation("execution option %q must be a %s, got %s", name, kind, got)
		}
	}
	return nil
}
