package models_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	models "github.com/fr-mccarty/outwardsign-sub009/internal/models"
)

func TestParseScopes(t *testing.T) {
	tests := []struct {
		name  string
		scope string
		want  []string
	}{
		{
			name:  "single known scope",
			scope: "read",
			want:  []string{"read"},
		},
		{
			name:  "request order preserved",
			scope: "profile read write",
			want:  []string{"profile", "read", "write"},
		},
		{
			name:  "unknown scopes dropped silently",
			scope: "read calendar write bulletin",
			want:  []string{"read", "write"},
		},
		{
			name:  "duplicates collapsed keeping first position",
			scope: "read write read profile write",
			want:  []string{"read", "write", "profile"},
		},
		{
			name:  "empty parameter",
			scope: "",
			want:  []string{},
		},
		{
			name:  "whitespace only",
			scope: "   ",
			want:  []string{},
		},
		{
			name:  "all unknown",
			scope: "calendar bulletin sacraments",
			want:  []string{},
		},
		{
			name:  "multiple spaces between scopes",
			scope: "read    profile",
			want:  []string{"read", "profile"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, models.ParseScopes(tt.scope))
		})
	}
}

func TestIntersectScopes(t *testing.T) {
	tests := []struct {
		name      string
		requested []string
		allowed   []string
		want      []string
	}{
		{
			name:      "full overlap keeps request order",
			requested: []string{"write", "read"},
			allowed:   []string{"read", "write", "delete"},
			want:      []string{"write", "read"},
		},
		{
			name:      "partial overlap",
			requested: []string{"read", "delete", "profile"},
			allowed:   []string{"read", "profile"},
			want:      []string{"read", "profile"},
		},
		{
			name:      "no overlap",
			requested: []string{"delete"},
			allowed:   []string{"read", "profile"},
			want:      []string{},
		},
		{
			name:      "duplicate requests de-duplicated",
			requested: []string{"read", "read"},
			allowed:   []string{"read"},
			want:      []string{"read"},
		},
		{
			name:      "hierarchy does not apply to client registration",
			requested: []string{"read"},
			allowed:   []string{"delete"},
			want:      []string{},
		},
		{
			name:      "empty request",
			requested: []string{},
			allowed:   []string{"read"},
			want:      []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, models.IntersectScopes(tt.requested, tt.allowed))
		})
	}
}

func TestScopeCovers(t *testing.T) {
	tests := []struct {
		held   string
		wanted string
		want   bool
	}{
		{held: "read", wanted: "read", want: true},
		{held: "write", wanted: "read", want: true},
		{held: "delete", wanted: "read", want: true},
		{held: "delete", wanted: "write", want: true},
		{held: "read", wanted: "write", want: false},
		{held: "write", wanted: "delete", want: false},
		{held: "profile", wanted: "profile", want: true},
		{held: "delete", wanted: "profile", want: false},
		{held: "profile", wanted: "read", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.held+"_covers_"+tt.wanted, func(t *testing.T) {
			assert.Equal(t, tt.want, models.ScopeCovers(tt.held, tt.wanted))
		})
	}
}

func TestScopesCover(t *testing.T) {
	assert.True(t, models.ScopesCover([]string{"write", "profile"}, []string{"read", "profile"}))
	assert.True(t, models.ScopesCover([]string{"delete"}, []string{"read", "write"}))
	assert.False(t, models.ScopesCover([]string{"read"}, []string{"read", "profile"}))
	assert.False(t, models.ScopesCover([]string{}, []string{"read"}))
	assert.True(t, models.ScopesCover([]string{}, []string{}), "empty request is vacuously covered")
}

func TestIsScopeSubset(t *testing.T) {
	assert.True(t, models.IsScopeSubset([]string{"read"}, []string{"read", "write"}))
	assert.True(t, models.IsScopeSubset([]string{}, []string{"read"}))
	assert.False(t, models.IsScopeSubset([]string{"write"}, []string{"read"}))
	// Verbatim membership only: hierarchy never widens a refresh.
	assert.False(t, models.IsScopeSubset([]string{"read"}, []string{"delete"}))
}

func TestUnionScopes(t *testing.T) {
	tests := []struct {
		name string
		a    []string
		b    []string
		want []string
	}{
		{
			name: "disjoint sets in canonical order",
			a:    []string{"profile"},
			b:    []string{"read"},
			want: []string{"read", "profile"},
		},
		{
			name: "overlapping sets",
			a:    []string{"read", "write"},
			b:    []string{"write", "delete"},
			want: []string{"read", "write", "delete"},
		},
		{
			name: "union with nil",
			a:    []string{"write", "read"},
			b:    nil,
			want: []string{"read", "write"},
		},
		{
			name: "both empty",
			a:    nil,
			b:    nil,
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, models.UnionScopes(tt.a, tt.b))
		})
	}
}

func TestFormatScopes(t *testing.T) {
	assert.Equal(t, "read write", models.FormatScopes([]string{"read", "write"}))
	assert.Equal(t, "", models.FormatScopes(nil))
}
