package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionValue_JSON(t *testing.T) {
	t.Parallel()

	var opts ExecutionOptions
	require.NoError(t, json.Unmarshal([]byte(`{"max_rows": 100, "stop_on_error": false, "label": "nightly"}`), &opts))

	n, ok := opts["max_rows"].AsNumber()
	require.True(t, ok)
	assert.InDelta(t, 100, n, 0)

	b, ok := opts["stop_on_error"].AsBool()
	require.True(t, ok)
	assert.False(t, b)

	s, ok := opts["label"].AsString()
	require.True(t, ok)
	assert.Equal(t, "nightly", s)

	_, ok = opts["label"].AsNumber()
	assert.False(t, ok)

	out, err := json.Marshal(opts)
	require.NoError(t, err)
	assert.JSONEq(t, `{"max_rows": 100, "stop_on_error": false, "label": "nightly"}`, string(out))
}

func TestOptionValue_RejectsNonScalars(t *testing.T) {
	t.Parallel()

	for _, body := range []string{`{"a": {"b": 1}}`, `{"a": [1]}`, `{"a": null}`} {
		var opts ExecutionOptions
		assert.Error(t, json.Unmarshal([]byte(body), &opts), body)
	}
}

func TestParseOptionValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		kind OptionKind
		text string
	}{
		{"true", OptionBool, "true"},
		{"250", OptionNumber, "250"},
		{"0.5", OptionNumber, "0.5"},
		{"main", OptionString, "main"},
		{"1", OptionNumber, "1"},
		{"TRUE", OptionString, "TRUE"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			v := ParseOptionValue(tt.in)
			assert.Equal(t, tt.kind, v.Kind())
			assert.Equal(t, tt.text, v.String())
		})
	}
}

func TestValidateExecutionOptions(t *testing.T) {
	t.Parallel()

	known := []OptionSpec{
		{Name: "max_rows", Kind: OptionNumber},
		{Name: "stop_on_error", Kind: OptionBool},
	}

	tests := []struct {
		name    string
		opts    ExecutionOptions
		known   []OptionSpec
		wantErr bool
	}{
		{name: "empty", opts: ExecutionOptions{}, known: known},
		{name: "valid", opts: ExecutionOptions{"max_rows": NumberOption(5)}, known: known},
		{name: "unknown", opts: ExecutionOptions{"explain": BoolOption(true)}, known: known, wantErr: true},
		{name: "wrong_kind", opts: ExecutionOptions{"stop_on_error": StringOption("yes")}, known: known, wantErr: true},
		{name: "empty_name", opts: ExecutionOptions{"": BoolOption(true)}, wantErr: true},
		{name: "zero_value", opts: ExecutionOptions{"x": {}}, wantErr: true},
		{name: "no_known_set_accepts_scalars", opts: ExecutionOptions{"anything": StringOption("x")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateExecutionOptions(tt.opts, tt.known)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var validation *ValidationError
			assert.True(t, errors.As(err, &validation), "got %v", err)
		})
	}
}
