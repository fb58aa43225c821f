package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinURL(t *testing.T) {
	tests := []struct {
		name     string
		base     string
		segments []string
		expected string
	}{
		{"trailing slash base", "http://am.example/", []string{"transfer"}, "http://am.example/transfer/"},
		{"no trailing slash", "http://am.example", []string{"tasks", "abc"}, "http://am.example/tasks/abc/"},
		{"segments with slashes", "http://am.example/", []string{"/ingest/", "/normalization-report/", "x/"}, "http://am.example/ingest/normalization-report/x/"},
		{"empty segment skipped", "http://ss.example:8000/", []string{"", "spaces"}, "http://ss.example:8000/spaces/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, JoinURL(tt.base, tt.segments...))
		})
	}
}

func TestResolveURL(t *testing.T) {
	got, err := ResolveURL("http://am.example/tasks/abc/", "?page=2")
	require.NoError(t, err)
	assert.Equal(t, "http://am.example/tasks/abc/?page=2", got)

	got, err = ResolveURL("http://am.example/tasks/abc/", "/tasks/abc/?page=3")
	require.NoError(t, err)
	assert.Equal(t, "http://am.example/tasks/abc/?page=3", got)

	got, err = ResolveURL("http://am.example/tasks/abc/", "http://other.example/x")
	require.NoError(t, err)
	assert.Equal(t, "http://other.example/x", got)
}

func TestWithQuery(t *testing.T) {
	got, err := WithQuery("http://ss.example/api/v2/file/u/download/", map[string]string{"username": "test", "api_key": "k"})
	require.NoError(t, err)
	assert.Equal(t, "http://ss.example/api/v2/file/u/download/?api_key=k&username=test", got)
}
