package pathmatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcher_Glob(t *testing.T) {
	m, err := NewMatcher([]string{"/health", "/static/*", "/api/v?/ping", "/files/[ab]*.txt"})
	require.NoError(t, err)

	tests := []struct {
		path string
		want bool
	}{
		{"/health", true},
		{"/health/live", false},
		{"/Health", false},
		{"/static/app.js", true},
		{"/static/css/site.css", true},
		{"/static", false},
		{"/api/v1/ping", true},
		{"/api/v10/ping", false},
		{"/files/a1.txt", true},
		{"/files/c1.txt", false},
		{"/other", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, m.IsExcluded(tt.path))
		})
	}
}

func TestMatcher_SingleStarSpansSeparators(t *testing.T) {
	m, err := NewMatcher([]string{"/api/*/status"})
	require.NoError(t, err)

	assert.True(t, m.IsExcluded("/api/x/status"))
	assert.True(t, m.IsExcluded("/api/x/y/z/status"))
	assert.True(t, m.IsExcluded("/api//status"))
	assert.False(t, m.IsExcluded("/api/status"))
	assert.False(t, m.IsExcluded("/api/x/other"))
}

func TestMatcher_DoubleStarMatchesPrefix(t *testing.T) {
	m, err := NewMatcher([]string{"/api/**/status", "/static/**.css"})
	require.NoError(t, err)

	tests := []struct {
		path string
		want bool
	}{
		{"/api/x/status", true},
		{"/api/other", true},
		{"/api/status", true},
		{"/api/", true},
		{"/static/app.js", true},
		{"/static/css/site.css", true},
		{"/api", false},
		{"/apiv2/status", false},
		{"/assets/app.css", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, m.IsExcluded(tt.path))
		})
	}
}

func TestMatcher_DoubleStarIgnoresTrailingClass(t *testing.T) {
	// the rest of the pattern is never compiled
	m, err := NewMatcher([]string{"/files/**[unterminated"})
	require.NoError(t, err)
	assert.True(t, m.IsExcluded("/files/anything"))
}

func TestMatcher_Regex(t *testing.T) {
	m, err := NewMatcher([]string{`re:/v[0-9]+/admin`})
	require.NoError(t, err)

	assert.True(t, m.IsExcluded("/v2/admin"))
	assert.True(t, m.IsExcluded("/v2/admin/users"))
	assert.False(t, m.IsExcluded("/api/v2/admin"))
}

func TestMatcher_GlobMetacharactersAreLiteral(t *testing.T) {
	m, err := NewMatcher([]string{"/a.b+(c)"})
	require.NoError(t, err)

	assert.True(t, m.IsExcluded("/a.b+(c)"))
	assert.False(t, m.IsExcluded("/axbb(c)"))
}

func TestMatcher_NegatedClass(t *testing.T) {
	m, err := NewMatcher([]string{"/x[!0-9]"})
	require.NoError(t, err)

	assert.True(t, m.IsExcluded("/xa"))
	assert.False(t, m.IsExcluded("/x1"))
}

func TestNewMatcher_Errors(t *testing.T) {
	_, err := NewMatcher([]string{"re:("})
	assert.Error(t, err)

	_, err = NewMatcher([]string{"/broken[abc"})
	assert.Error(t, err)
}

func TestMatcher_Empty(t *testing.T) {
	m, err := NewMatcher(nil)
	require.NoError(t, err)
	assert.False(t, m.IsExcluded("/anything"))
	assert.Empty(t, m.Patterns())
}
