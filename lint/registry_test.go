// Copyright © 2024 The bpflint authors

package lint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(*Pass) error { return nil }

func TestRegistry_Register(t *testing.T) {
	reg, err := NewRegistry(&Rule{Name: "b-rule", Doc: "B.", Run: noop}, &Rule{Name: "a-rule", Doc: "A.\n\nMore.", Run: noop})
	require.NoError(t, err)

	assert.True(t, reg.Has("a-rule"))
	assert.False(t, reg.Has("c-rule"))

	rule, ok := reg.Lookup("a-rule")
	require.True(t, ok)
	assert.Equal(t, "A.", rule.Summary())

	names := []string{}
	for _, r := range reg.Rules() {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"b-rule", "a-rule"}, names, "rules keep registration order")

	list := reg.List()
	require.Len(t, list, 2)
	assert.Equal(t, "a-rule", list[0].Name)
	assert.Equal(t, "b-rule", list[1].Name)
}

func TestRegistry_Errors(t *testing.T) {
	_, err := NewRegistry(&Rule{Name: "dup", Run: noop}, &Rule{Name: "dup", Run: noop})
	assert.ErrorIs(t, err, ErrDuplicateRule)
	assert.Contains(t, err.Error(), "dup")

	tests := []struct {
		name string
		rule *Rule
	}{
		{"nil rule", nil},
		{"nil run", &Rule{Name: "x"}},
		{"empty name", &Rule{Run: noop}},
		{"space in name", &Rule{Name: "bad name", Run: noop}},
		{"comma in name", &Rule{Name: "a,b", Run: noop}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var reg Registry
			assert.Error(t, reg.Register(tt.rule))
			assert.Empty(t, reg.Rules())
		})
	}

	assert.Panics(t, func() {
		var reg Registry
		reg.MustRegister(&Rule{Name: "x", Run: noop}, &Rule{Name: "x", Run: noop})
	})
}

func TestDefaultRegistry(t *testing.T) {
	reg := DefaultRegistry()
	assert.Same(t, reg, DefaultRegistry())
	require.Len(t, reg.Rules(), len(DefaultRules()))

	for _, info := range ListLints() {
		assert.Regexp(t, `^[a-z]+(-[a-z]+)*$`, info.Name)
		assert.NotEmpty(t, info.Doc, info.Name)
		assert.NotEqual(t, severityUnset, info.Severity, info.Name)
		rule, ok := reg.Lookup(info.Name)
		require.True(t, ok)
		assert.NotContains(t, rule.Summary(), "\n")
	}

	names := []string{}
	for _, info := range ListLints() {
		names = append(names, info.Name)
	}
	assert.Equal(t, []string{
		"legacy-map-definition",
		"perf-event-array",
		"probe-read",
		"trace-printk",
		"unstable-attach-point",
		"untyped-map-member",
	}, names)
}
