package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func config(pairs ...any) *RouteConfig {
	c := NewRouteConfig()
	for i := 0; i < len(pairs); i += 2 {
		c.Set(pairs[i].(string), pairs[i+1].(map[string]any))
	}
	return c
}

func TestRouteConfigOrder(t *testing.T) {
	c := config(
		"/api", map[string]any{"target": "http://localhost:4000"},
		"/ws", map[string]any{"target": "http://localhost:5000"},
	)
	c.Set("/api", map[string]any{"target": "http://localhost:4001"})

	assert.Equal(t, []string{"/api", "/ws"}, c.Contexts())
	rule, ok := c.Get("/api")
	require.True(t, ok)
	assert.Equal(t, "http://localhost:4001", rule.Options["target"])

	var nilConfig *RouteConfig
	assert.Equal(t, 0, nilConfig.Len())
}

func TestEquivalent(t *testing.T) {
	api := config("/api", map[string]any{"target": "http://localhost:4000"})
	both := config(
		"/api", map[string]any{"target": "http://localhost:4000"},
		"/ws", map[string]any{"target": "http://localhost:5000"},
	)

	tests := []struct {
		name string
		old  *RouteConfig
		next *RouteConfig
		want bool
	}{
		{name: "reflexive", old: both, next: both, want: true},
		{name: "empty old is vacuous", old: NewRouteConfig(), next: both, want: true},
		{name: "nil old is vacuous", old: nil, next: api, want: true},
		{name: "added context", old: api, next: both, want: false},
		{name: "removed context", old: both, next: api, want: false},
		{
			name: "reordered contexts",
			old:  both,
			next: config(
				"/ws", map[string]any{"target": "http://localhost:5000"},
				"/api", map[string]any{"target": "http://localhost:4000"},
			),
			want: false,
		},
		{
			name: "changed target",
			old:  api,
			next: config("/api", map[string]any{"target": "http://localhost:4001"}),
			want: false,
		},
		{
			name: "incidental default field",
			old:  api,
			next: config("/api", map[string]any{"target": "http://localhost:4000", "logLevel": "silent"}),
			want: true,
		},
		{
			name: "nested subset",
			old: config("/api", map[string]any{
				"target":      "http://localhost:4000",
				"pathRewrite": map[string]any{"^/api": ""},
			}),
			next: config("/api", map[string]any{
				"target":      "http://localhost:4000",
				"pathRewrite": map[string]any{"^/api": "", "^/v1": "/v2"},
			}),
			want: true,
		},
		{
			name: "numeric types",
			old:  config("/api", map[string]any{"target": "http://a", "timeout": 100}),
			next: config("/api", map[string]any{"target": "http://a", "timeout": float64(100)}),
			want: true,
		},
		{
			name: "slice length differs",
			old:  config("/api", map[string]any{"target": "http://a", "methods": []any{"GET"}}),
			next: config("/api", map[string]any{"target": "http://a", "methods": []any{"GET", "POST"}}),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Equivalent(tt.old, tt.next))
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		rule    RouteRule
		wantErr bool
	}{
		{
			name: "valid",
			rule: RouteRule{Context: "/api", Options: map[string]any{"target": "http://localhost:4000"}},
		},
		{
			name:    "relative context",
			rule:    RouteRule{Context: "api", Options: map[string]any{"target": "http://localhost:4000"}},
			wantErr: true,
		},
		{
			name:    "missing target",
			rule:    RouteRule{Context: "/api", Options: map[string]any{"changeOrigin": true}},
			wantErr: true,
		},
		{
			name:    "relative target",
			rule:    RouteRule{Context: "/api", Options: map[string]any{"target": "localhost/api"}},
			wantErr: true,
		},
		{
			name:    "bad log level",
			rule:    RouteRule{Context: "/api", Options: map[string]any{"target": "http://a", "logLevel": "loud"}},
			wantErr: true,
		},
		{
			name: "bad rewrite pattern",
			rule: RouteRule{Context: "/api", Options: map[string]any{
				"target":      "http://a",
				"pathRewrite": map[string]any{"(": ""},
			}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDecodeOptions(t *testing.T) {
	opts, err := DecodeOptions(RouteRule{Context: "/api", Options: map[string]any{
		"target":       "http://localhost:4000",
		"changeOrigin": true,
		"pathRewrite":  map[string]any{"^/api": ""},
		"secure":       false,
		"custom":       "kept",
	}})
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:4000", opts.Target)
	assert.True(t, opts.ChangeOrigin)
	assert.Equal(t, LogLevelSilent, opts.LogLevel)
	assert.Equal(t, map[string]string{"^/api": ""}, opts.PathRewrite)
	assert.False(t, opts.SecureTLS())
	assert.Equal(t, "kept", opts.Extra["custom"])
}

func TestMatches(t *testing.T) {
	tests := []struct {
		context string
		path    string
		want    bool
	}{
		{"/api", "/api", true},
		{"/api", "/api/users", true},
		{"/api", "/apiv2", false},
		{"/api/", "/api/users", true},
		{"/", "/anything", true},
		{"/ws", "/api", false},
		{"/api/*/items", "/api/v1/items/3", true},
		{"/api/*/items", "/api/v1/other", false},
	}

	for _, tt := range tests {
		t.Run(tt.context+" "+tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, Matches(tt.context, tt.path))
		})
	}
}
