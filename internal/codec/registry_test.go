package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Lookup(t *testing.T) {
	r := DefaultRegistry()

	tests := []struct {
		release string
		want    string
		found   bool
	}{
		{"0.1.0", "0.1.0", true},
		{"0.1.7", "0.1.0", true},
		{"0.2.0", "0.2.0", true},
		{"1.4.2", "0.2.0", true},
		{"0.2.0-dev", "0.1.0", true},
		{"0.0.9", "", false},
		{"not-a-version", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.release, func(t *testing.T) {
			f, ok := r.Lookup(tt.release)
			assert.Equal(t, tt.found, ok)
			if tt.found {
				assert.Equal(t, tt.want, f.Version())
			}
		})
	}
}

func TestRegistry_KeepsEveryFormat(t *testing.T) {
	r := DefaultRegistry()

	assert.Equal(t, []string{"0.1.0", "0.2.0"}, r.Versions())
	for _, v := range r.Versions() {
		f, ok := r.Lookup(v)
		require.True(t, ok)
		assert.NotEmpty(t, f.Bind("bot").InfoHeader("@daily", 10))
	}
}

func TestNewRegistry_Rejects(t *testing.T) {
	_, err := NewRegistry(NewFormat("bogus", V020.header))
	assert.Error(t, err)

	_, err = NewRegistry(V020, NewFormat("0.2.0", V010.header))
	assert.Error(t, err)
}

func TestOlder(t *testing.T) {
	assert.True(t, Older("0.1.0", "0.2.0"))
	assert.False(t, Older("0.2.0", "0.2.0"))
	assert.False(t, Older("0.3.0", "0.2.0"))
	assert.False(t, Older("0.0.1.128", "0.2.0"))
}
