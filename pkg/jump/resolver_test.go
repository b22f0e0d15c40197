package jump

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/marker/pkg/editor"
	"github.com/entrhq/marker/pkg/marks"
)

func setup(t *testing.T) (*editor.Memory, *marks.Store, *Resolver) {
	t.Helper()
	host := editor.NewMemory(editor.Capabilities{})
	store := marks.NewStore(marks.WithAnnotator(host))
	return host, store, NewResolver(store, host, nil)
}

func openShown(t *testing.T, host *editor.Memory, name, text string) (marks.DocumentID, editor.ViewID) {
	t.Helper()
	doc := host.OpenDocument(name, text)
	v, err := host.OpenView(doc)
	require.NoError(t, err)
	return doc, v
}

func TestRecoverColumn(t *testing.T) {
	tests := []struct {
		name          string
		line          string
		column        int
		glyph         string
		want          int
		wantRecovered bool
	}{
		{name: "in range is trusted", line: "hello", column: 2, glyph: "a", want: 2},
		{name: "nearest to clamped end", line: "xMxMx", column: 10, glyph: "M", want: 3, wantRecovered: true},
		{name: "single occurrence", line: "abcMe", column: 40, glyph: "M", want: 3, wantRecovered: true},
		{name: "nearest of several", line: "MxxM", column: 6, glyph: "x", want: 2, wantRecovered: true},
		{name: "negative column picks nearest", line: "aba", column: -1, glyph: "b", want: 1, wantRecovered: true},
		{name: "no occurrence clamps to length", line: "abc", column: 9, glyph: "z", want: 3, wantRecovered: true},
		{name: "empty line clamps to zero", line: "", column: 4, glyph: "a", want: 0, wantRecovered: true},
		{name: "multibyte glyph", line: "éxé", column: 12, glyph: "é", want: 3, wantRecovered: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, recovered := RecoverColumn(tt.line, tt.column, tt.glyph)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantRecovered, recovered)
		})
	}
}

func TestCloser_TieBreak(t *testing.T) {
	// Occurrences at 2 and 6 are both 2 away from 4.
	assert.True(t, closer(2, 6, 4))
	assert.False(t, closer(6, 2, 4))
	// Exactly at the target counts as at-or-before.
	assert.True(t, closer(4, 5, 4))
}

func TestResolve_StoreRoundTrip(t *testing.T) {
	host, store, r := setup(t)
	doc, _ := openShown(t, host, "a.txt", "l1\nl2\nl3\nl4\nl5\nl6")

	for _, mark := range []marks.MarkID{'a', 'K'} {
		store.Register(mark, doc, 4, 0)
		got, err := r.Resolve(mark)
		require.NoError(t, err)
		assert.Equal(t, doc, got.Document)
		assert.Equal(t, 4, got.Line)
		assert.Equal(t, SourceStore, got.Source)
	}
}

func TestResolve_LiveHostIsAuthoritative(t *testing.T) {
	host, store, r := setup(t)
	doc, _ := openShown(t, host, "a.txt", "1\n2\n3\n4\n5")

	require.NoError(t, host.SetNativeMark('a', doc, editor.Position{Line: 2}))
	store.Register('a', doc, 2, 0)

	// An edit moves the native mark; the store never hears about it.
	require.NoError(t, host.InsertLines(doc, 1, "x", "y"))

	got, err := r.Resolve('a')
	require.NoError(t, err)
	assert.Equal(t, 4, got.Line)
	assert.Equal(t, SourceHost, got.Source)
}

func TestResolve_NotFound(t *testing.T) {
	host, _, r := setup(t)
	openShown(t, host, "a.txt", "x")

	_, err := r.Resolve('q')
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.Resolve('Q')
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolve_UnresolvableWithoutView(t *testing.T) {
	host, store, r := setup(t)
	openShown(t, host, "a.txt", "x")
	hidden := host.OpenDocument("hidden.txt", "1\n2\n3")

	store.Register('B', hidden, 2, 0)
	store.Register('c', 77, 1, 0) // a document from an earlier session, never opened

	_, err := r.Resolve('B')
	require.ErrorIs(t, err, ErrUnresolvable)
	var uerr *UnresolvableError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, hidden, uerr.Document)
	assert.Equal(t, "hidden.txt", uerr.Name)
	assert.Contains(t, err.Error(), "hidden.txt")

	_, err = r.Resolve('c')
	assert.ErrorIs(t, err, ErrUnresolvable)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestResolve_ScopedPrefersCurrentDocument(t *testing.T) {
	host, store, r := setup(t)
	doc1, v1 := openShown(t, host, "one.txt", "1\n2\n3\n4\n5\n6\n7\n8\n9")
	doc2, _ := openShown(t, host, "two.txt", "1\n2\n3\n4\n5\n6\n7\n8\n9")

	store.Register('a', doc1, 5, 0)
	store.Register('a', doc2, 9, 0)

	require.NoError(t, host.Focus(v1))
	got, err := r.Resolve('a')
	require.NoError(t, err)
	assert.Equal(t, doc1, got.Document)
	assert.Equal(t, 5, got.Line)
}

func TestResolve_ScopedFallsBackToMostRecentResident(t *testing.T) {
	host, store, r := setup(t)
	doc1, _ := openShown(t, host, "one.txt", "1\n2\n3\n4")
	doc2, _ := openShown(t, host, "two.txt", "1\n2\n3\n4")
	doc3, _ := openShown(t, host, "three.txt", "1\n2\n3\n4")
	doc4, _ := openShown(t, host, "four.txt", "1\n2\n3\n4")

	store.Register('a', doc1, 1, 0)
	store.Register('a', doc2, 2, 0)
	store.Register('a', doc3, 3, 0)
	host.UnloadDocument(doc3)

	// doc4 is current and has no entry; doc3 is newest but not resident.
	require.Equal(t, doc4, host.CurrentDocument())
	got, err := r.Resolve('a')
	require.NoError(t, err)
	assert.Equal(t, doc2, got.Document)
	assert.Equal(t, 2, got.Line)
}

func TestResolve_ColumnRecovery(t *testing.T) {
	host, store, r := setup(t)
	doc, _ := openShown(t, host, "a.txt", "first\nxMxMx")

	store.Register('M', doc, 2, 10)
	got, err := r.Resolve('M')
	require.NoError(t, err)
	assert.Equal(t, 3, got.Column)
	assert.True(t, got.Recovered)
}

func TestResolve_LineClampedToDocument(t *testing.T) {
	host, store, r := setup(t)
	doc, _ := openShown(t, host, "a.txt", "one\ntwo")

	store.Register('z', doc, 40, 1)
	got, err := r.Resolve('z')
	require.NoError(t, err)
	assert.Equal(t, 2, got.Line)
	assert.Equal(t, 1, got.Column)
}

func TestJump_MovesCursorAndFocus(t *testing.T) {
	host, store, r := setup(t)
	doc1, v1 := openShown(t, host, "one.txt", "a\nb\nc\nd")
	_, v2 := openShown(t, host, "two.txt", "a\nb")
	require.Equal(t, v2, host.CurrentView())

	store.Register('G', doc1, 3, 0)
	got, err := r.Jump('G')
	require.NoError(t, err)
	assert.Equal(t, 3, got.Line)

	assert.Equal(t, v1, host.CurrentView())
	pos, err := host.Cursor(v1)
	require.NoError(t, err)
	assert.Equal(t, editor.Position{Line: 3, Column: 0}, pos)
}

func TestJump_DoesNotOpenViews(t *testing.T) {
	host, store, r := setup(t)
	openShown(t, host, "one.txt", "a")
	hidden := host.OpenDocument("two.txt", "a\nb")
	store.Register('H', hidden, 2, 0)

	views := host.Views()
	_, err := r.Jump('H')
	assert.ErrorIs(t, err, ErrUnresolvable)
	assert.Equal(t, views, host.Views())
}
