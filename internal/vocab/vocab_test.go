package vocab

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", []string{}},
		{"blank lines", "\n \n\t\n", []string{}},
		{"trimmed", "  Kubernetes \n\ngRPC\r\n", []string{"Kubernetes", "gRPC"}},
		{"order and duplicates kept", "b\na\nb", []string{"b", "a", "b"}},
		{"byte order mark", "\ufeffPostgres\nRedis", []string{"Postgres", "Redis"}},
		{"inner spaces kept", "Hacker News", []string{"Hacker News"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Parse(tt.in))
		})
	}
}

func TestParseOverlongLine(t *testing.T) {
	long := strings.Repeat("x", maxLineBytes+10)
	got := Parse("first\n" + long)
	require.Equal(t, []string{"first", long}, got)
}

func TestReadOverlongLineFails(t *testing.T) {
	_, err := Read(strings.NewReader(strings.Repeat("x", maxLineBytes+10)))
	require.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.txt")
	require.NoError(t, os.WriteFile(path, []byte("alpha\n\nbeta\n"), 0644))

	terms, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, []string{"alpha", "beta"}, terms)

	terms, err = Load("")
	require.NoError(t, err)
	require.Empty(t, terms)

	_, err = Load(filepath.Join(t.TempDir(), "missing.txt"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
