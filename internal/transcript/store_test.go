package transcript

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func builtScenario(t *testing.T) *Transcript {
	t.Helper()
	tr, err := Build(scenarioA())
	require.NoError(t, err)
	return tr
}

func TestRoundTrip(t *testing.T) {
	tr := builtScenario(t)

	first, err := Marshal(tr)
	require.NoError(t, err)
	back, err := Decode(bytes.NewReader(first))
	require.NoError(t, err)
	require.Equal(t, tr, back)

	second, err := Marshal(back)
	require.NoError(t, err)
	require.Equal(t, string(first), string(second))
}

func TestEncodeShape(t *testing.T) {
	segs := []Segment{{ID: 0, Start: 0, End: 1, Text: " <noise> & more"}}
	tr := &Transcript{Text: JoinText(segs), Language: "en", Segments: segs}

	data, err := Marshal(tr)
	require.NoError(t, err)
	s := string(data)
	require.Contains(t, s, `"words": []`)
	require.Contains(t, s, `" <noise> & more"`)
	require.NotContains(t, s, `\u003c`)
	require.True(t, strings.Index(s, `"text"`) < strings.Index(s, `"language"`))
	require.True(t, strings.Index(s, `"language"`) < strings.Index(s, `"segments"`))

	require.Nil(t, tr.Segments[0].Words, "Marshal must not mutate its input")
}

func TestDecodeNormalizesMissingWords(t *testing.T) {
	doc := `{"text":" a","language":"en","segments":[{"id":0,"start":0,"end":1,"text":" a"}]}`
	tr, err := Decode(strings.NewReader(doc))
	require.NoError(t, err)
	require.NotNil(t, tr.Segments[0].Words)
	require.Empty(t, tr.Segments[0].Words)
}

func TestDecodeRejectsInvalidDocuments(t *testing.T) {
	tests := map[string]string{
		"syntax":        `{"text":`,
		"text mismatch": `{"text":"x","language":"en","segments":[{"id":0,"start":0,"end":1,"text":"y","words":[]}]}`,
		"id gap":        `{"text":"y","language":"en","segments":[{"id":1,"start":0,"end":1,"text":"y","words":[]}]}`,
		"no language":   `{"text":"y","language":"","segments":[{"id":0,"start":0,"end":1,"text":"y","words":[]}]}`,
		"word outside":  `{"text":"y","language":"en","segments":[{"id":0,"start":0,"end":1,"text":"y","words":[{"word":"y","start":0.5,"end":1.5,"probability":1}]}]}`,
		"bad prob":      `{"text":"y","language":"en","segments":[{"id":0,"start":0,"end":1,"text":"y","words":[{"word":"y","start":0,"end":1,"probability":2}]}]}`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(doc))
			require.Error(t, err)
		})
	}
}

func TestSaveLoad(t *testing.T) {
	tr := builtScenario(t)
	path := filepath.Join(t.TempDir(), "out", "talk.json")

	require.NoError(t, Save(path, tr))
	got, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, tr, got)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestSaveReplacesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "talk.json")
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0644))

	require.NoError(t, Save(path, builtScenario(t)))
	_, err := Load(path)
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
