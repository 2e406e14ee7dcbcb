// ABOUTME: Tests for objref parsing and formatting
// ABOUTME: Covers valid refs and malformed inputs

package assets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRef(t *testing.T) {
	ref, err := ParseRef("objref://sessionfiles/1234-abcd")
	require.NoError(t, err)
	assert.Equal(t, Ref{Category: "sessionfiles", UUID: "1234-abcd"}, ref)
	assert.Equal(t, "objref://sessionfiles/1234-abcd", ref.String())
}

func TestParseRef_Invalid(t *testing.T) {
	tests := []string{
		"",
		"sessionfiles/1234",
		"objref://",
		"objref://sessionfiles",
		"objref://sessionfiles/",
		"objref:///1234",
		"objref://a/b/c",
		"http://sessionfiles/1234",
	}

	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			_, err := ParseRef(input)
			assert.ErrorIs(t, err, ErrInvalidRef)
		})
	}
}
