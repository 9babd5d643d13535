package memo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey_StructuralEquality(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a    []any
		b    []any
	}{
		{
			name: "scalars",
			a:    []any{"hello", 42, true, nil},
			b:    []any{"hello", 42, true, nil},
		},
		{
			name: "map insertion order is irrelevant",
			a:    []any{map[string]any{"model": "gpt-4", "temperature": 1.0}},
			b:    []any{map[string]any{"temperature": 1.0, "model": "gpt-4"}},
		},
		{
			name: "typed and untyped sequences fingerprint identically",
			a:    []any{[]int{1, 2, 3}},
			b:    []any{[]any{1, 2, 3}},
		},
		{
			name: "nested containers",
			a:    []any{map[string]any{"msgs": []any{map[string]any{"role": "user"}}}},
			b:    []any{map[string]any{"msgs": []any{map[string]any{"role": "user"}}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ka, err := Key(tt.a...)
			require.NoError(t, err)
			kb, err := Key(tt.b...)
			require.NoError(t, err)
			assert.Equal(t, ka, kb)
		})
	}
}

func TestKey_DistinguishesDifferentArguments(t *testing.T) {
	t.Parallel()

	k1, err := Key("a", 1)
	require.NoError(t, err)
	k2, err := Key("a", 2)
	require.NoError(t, err)
	k3, err := Key(1, "a")
	require.NoError(t, err)

	assert.NotEqual(t, k1, k2)
	assert.NotEqual(t, k1, k3, "argument order must matter")
}

func TestKey_OrderWithinSequencesMatters(t *testing.T) {
	t.Parallel()

	k1, err := Key([]any{1, 2})
	require.NoError(t, err)
	k2, err := Key([]any{2, 1})
	require.NoError(t, err)

	assert.NotEqual(t, k1, k2)
}

func TestKey_StructsFingerprintByValue(t *testing.T) {
	t.Parallel()

	type req struct {
		Model string  `json:"model"`
		TopP  float64 `json:"top_p"`
	}

	k1, err := Key(req{Model: "gpt-4", TopP: 1})
	require.NoError(t, err)
	k2, err := Key(req{Model: "gpt-4", TopP: 1})
	require.NoError(t, err)
	k3, err := Key(req{Model: "gpt-4", TopP: 0.5})
	require.NoError(t, err)

	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
}

func TestKey_RejectsUnencodableArguments(t *testing.T) {
	t.Parallel()

	_, err := Key(func() {})
	assert.Error(t, err)
}
