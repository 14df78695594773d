package knowledgebase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileKey(t *testing.T) {
	tests := []struct {
		name   string
		key    string
		window string
		want   bool
	}{
		{"literal hit", "dragon", "the dragon sleeps", true},
		{"literal ignores case", "dragon", "The Dragon sleeps", true},
		{"literal key matches lowered window", "red wyrm", "A RED WYRM!", true},
		{"literal miss", "dragon", "the wyrm sleeps", false},
		{"regex", "/drag(on|ons)/", "two dragons", true},
		{"regex ignore case", "/dragon/i", "DRAGON", true},
		{"regex without flag", "/dragon/", "DRAGON", false},
		{"regex dot all", "/red.dragon/s", "red\ndragon", true},
		{"slashes but not regex", "a/b", "a/b", true},
		{"path is literal", "/usr/bin", "ran /usr/bin/env", true},
		{"path is not a pattern", "/usr/bin", "user bin", false},
		{"unknown flags are literal", "/dragon/x", "see /dragon/x", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := compileKey(tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.want, m(tt.window))
		})
	}
}

func TestCompileKey_Invalid(t *testing.T) {
	_, err := compileKey("/[unclosed/")
	assert.Error(t, err)

	_, err = compileKey("/[unclosed/is")
	assert.Error(t, err)
}

func TestEntryValidate(t *testing.T) {
	err := Entry{Keys: []string{"/(/"}, TokenBudget: -1}.Validate()
	require.Error(t, err)
	for _, want := range []string{"id is required", "display name is required", "text content is required", "token budget", "key"} {
		assert.Contains(t, err.Error(), want)
	}

	ok := Entry{ID: "kbe-1", DisplayName: "Dragons", TextContent: "Dragons breathe fire."}
	assert.NoError(t, ok.Validate())

	paths := Entry{ID: "kbe-2", DisplayName: "Shell", TextContent: "Binaries live here.", Keys: []string{"/usr/bin", "/etc/hosts"}}
	assert.NoError(t, paths.Validate())
}

func TestEntryIsPrivate(t *testing.T) {
	assert.True(t, Entry{Keys: []string{"x", PrivateKey}}.IsPrivate())
	assert.False(t, Entry{Keys: []string{"private"}}.IsPrivate())
}

func TestLowerKeys(t *testing.T) {
	assert.Equal(t, []string{"dragon", "red wyrm"}, lowerKeys([]string{" Dragon ", "", "Red Wyrm"}))
	assert.Equal(t, []string{"/usr/bin", `/\D+/`, "/Dragon/i"}, lowerKeys([]string{"/USR/bin", `/\D+/`, "/Dragon/i"}))
}
