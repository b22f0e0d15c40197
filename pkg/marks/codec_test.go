package marks

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_Shape(t *testing.T) {
	s := NewStore()
	s.Register('A', 4, 10, 2)
	s.Register('a', 1, 5, 0)
	s.Register('a', 2, 9, 3)

	data, err := Encode(s.Snapshot())
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &doc))

	global, ok := doc["A"].(map[string]interface{})
	require.True(t, ok, "global marks hold one location")
	assert.Equal(t, float64(4), global["documentId"])
	assert.Equal(t, float64(10), global["line"])
	assert.Equal(t, float64(2), global["column"])
	assert.Contains(t, global, "annotationHandle")

	scoped, ok := doc["a"].(map[string]interface{})
	require.True(t, ok, "scoped marks hold a per-document object")
	assert.Contains(t, scoped, "1")
	assert.Contains(t, scoped, "2")
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantErr   bool
		want      [][3]int
		wantWarns int
	}{
		{
			name:  "empty input",
			input: "",
			want:  [][3]int{},
		},
		{
			name:  "nested scoped and global",
			input: `{"A":{"documentId":3,"line":7,"column":1,"annotationHandle":2},"a":{"1":{"documentId":1,"line":5,"column":0,"annotationHandle":1}}}`,
			want:  [][3]int{{'A', 3, 7}, {'a', 1, 5}},
		},
		{
			name:  "missing handle",
			input: `{"b":{"4":{"documentId":4,"line":2,"column":0}}}`,
			want:  [][3]int{{'b', 4, 2}},
		},
		{
			name:  "legacy flat scoped entry is migrated",
			input: `{"c":{"documentId":6,"line":11,"column":3,"annotationHandle":8}}`,
			want:  [][3]int{{'c', 6, 11}},
		},
		{
			name:      "bad entries are skipped",
			input:     `{"ab":{"documentId":1,"line":1},"d":"nope","E":{"documentId":1,"line":0},"f":{"x":{"line":1}},"g":{"2":{"documentId":2,"line":3}}}`,
			want:      [][3]int{{'g', 2, 3}},
			wantWarns: 4,
		},
		{name: "array top level", input: `[1,2,3]`, wantErr: true},
		{name: "string top level", input: `"marks"`, wantErr: true},
		{name: "null top level", input: `null`, wantErr: true},
		{name: "corrupt", input: `{"a":`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, warns, err := Decode([]byte(tt.input))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformed)
				return
			}
			require.NoError(t, err)
			assert.Len(t, warns, tt.wantWarns)

			s := NewStore()
			s.Restore(snap)
			assert.Equal(t, tt.want, triples(s.List()))
		})
	}
}

func TestDecode_LegacyKeepsDocument(t *testing.T) {
	snap, _, err := Decode([]byte(`{"c":{"documentId":6,"line":11,"column":3}}`))
	require.NoError(t, err)

	loc, ok := snap.Scoped['c'][6]
	require.True(t, ok)
	assert.Equal(t, 11, loc.Line)
	assert.Equal(t, 3, loc.Column)
}

func TestCodec_RoundTrip(t *testing.T) {
	s := NewStore()
	s.Register('a', 1, 5, 0)
	s.Register('a', 2, 9, 4)
	s.Register('b', 2, 1, 0)
	s.Register('A', 3, 7, 1)
	s.Register('Z', 1, 2, 0)

	data, err := Encode(s.Snapshot())
	require.NoError(t, err)
	snap, warns, err := Decode(data)
	require.NoError(t, err)
	assert.Empty(t, warns)

	restored := NewStore()
	restored.Restore(snap)
	assert.Equal(t, triples(s.List()), triples(restored.List()))

	for _, e := range restored.List() {
		orig, ok := s.Lookup(e.Mark, e.Document)
		require.True(t, ok)
		assert.Equal(t, orig.Column, e.Column)
	}
}
