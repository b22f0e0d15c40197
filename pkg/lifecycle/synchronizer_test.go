package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/marker/pkg/editor"
	"github.com/entrhq/marker/pkg/marks"
)

func setup(t *testing.T, exclude ...string) (*editor.Memory, *marks.Store, *Synchronizer) {
	t.Helper()
	host := editor.NewMemory(editor.Capabilities{MarkEvents: true})
	store := marks.NewStore(marks.WithAnnotator(host))
	syn, err := NewSynchronizer(store, host, exclude, nil)
	require.NoError(t, err)
	require.NoError(t, syn.Attach(host))
	require.NoError(t, host.Subscribe(editor.EventMarkChanged, syn.Handle))
	return host, store, syn
}

func TestNewSynchronizer_InvalidPattern(t *testing.T) {
	host := editor.NewMemory(editor.Capabilities{})
	_, err := NewSynchronizer(marks.NewStore(), host, []string{"[unclosed"}, nil)
	assert.Error(t, err)
}

func TestSynchronizer_ReannotatesOnReload(t *testing.T) {
	host, store, _ := setup(t)
	doc := host.OpenDocument("a.txt", "1\n2\n3")
	_, err := host.OpenView(doc)
	require.NoError(t, err)

	require.NoError(t, host.SetNativeMark('a', doc, editor.Position{Line: 2}))
	require.Len(t, host.Annotations(doc), 1)
	handle := host.Annotations(doc)[0].Handle

	host.UnloadDocument(doc)
	assert.Empty(t, host.Annotations(doc))
	assert.Equal(t, 1, store.Len(), "unload keeps the record")

	_, err = host.OpenView(doc)
	require.NoError(t, err)
	got := host.Annotations(doc)
	require.Len(t, got, 1)
	assert.Equal(t, handle, got[0].Handle, "the handle survives unload")
	assert.Equal(t, 2, got[0].Line)
}

func TestSynchronizer_RestoredMarksAnnotatedOnOpen(t *testing.T) {
	host, store, _ := setup(t)
	store.Restore(marks.Snapshot{
		Scoped: map[marks.MarkID]map[marks.DocumentID]marks.Location{
			'a': {1: {Document: 1, Line: 2, Handle: 4}},
		},
		Global: map[marks.MarkID]marks.Location{
			'B': {Document: 1, Line: 3, Handle: 9},
		},
	})

	doc := host.OpenDocument("a.txt", "1\n2\n3")
	require.Equal(t, marks.DocumentID(1), doc)

	got := host.Annotations(doc)
	require.Len(t, got, 2)
	assert.Equal(t, marks.Handle(4), got[0].Handle)
	assert.Equal(t, marks.Handle(9), got[1].Handle)
}

func TestSynchronizer_PruneOnCloseAndWipe(t *testing.T) {
	for _, tc := range []struct {
		name string
		fn   func(*editor.Memory, marks.DocumentID)
	}{
		{name: "close", fn: (*editor.Memory).CloseDocument},
		{name: "wipe", fn: (*editor.Memory).WipeDocument},
	} {
		t.Run(tc.name, func(t *testing.T) {
			host, store, _ := setup(t)
			doc1 := host.OpenDocument("a.txt", "1\n2")
			doc2 := host.OpenDocument("b.txt", "1\n2")
			require.NoError(t, host.SetNativeMark('a', doc1, editor.Position{Line: 1}))
			require.NoError(t, host.SetNativeMark('a', doc2, editor.Position{Line: 2}))
			require.NoError(t, host.SetNativeMark('Q', doc1, editor.Position{Line: 2}))

			tc.fn(host, doc1)

			entries := store.List()
			require.Len(t, entries, 1)
			assert.Equal(t, doc2, entries[0].Document)
		})
	}
}

func TestSynchronizer_HostClearRemoves(t *testing.T) {
	host, store, _ := setup(t)
	doc := host.OpenDocument("a.txt", "1\n2\n3")
	require.NoError(t, host.SetNativeMark('a', doc, editor.Position{Line: 2}))
	require.Equal(t, 1, store.Len())

	require.NoError(t, host.DeleteLines(doc, 2, 1))
	assert.Zero(t, store.Len())
	assert.Empty(t, host.Annotations(doc))
}

func TestSynchronizer_StateMachine(t *testing.T) {
	host, store, _ := setup(t)
	doc := host.OpenDocument("a.txt", "1\n2\n3")

	// Unset -> Set
	require.NoError(t, host.SetNativeMark('a', doc, editor.Position{Line: 1}))
	first, ok := store.Scoped('a', doc)
	require.True(t, ok)

	// Set -> Set keeps the handle
	require.NoError(t, host.SetNativeMark('a', doc, editor.Position{Line: 3}))
	second, _ := store.Scoped('a', doc)
	assert.Equal(t, first.Handle, second.Handle)
	assert.Equal(t, 3, second.Line)

	// Set -> Unset
	store.Remove('a', doc)
	_, ok = store.Scoped('a', doc)
	assert.False(t, ok)

	// Unset -> Set allocates a fresh handle
	require.NoError(t, host.SetNativeMark('a', doc, editor.Position{Line: 2}))
	third, _ := store.Scoped('a', doc)
	assert.NotEqual(t, first.Handle, third.Handle)
}

func TestSynchronizer_ExcludedDocuments(t *testing.T) {
	host, store, _ := setup(t, "*.log", "term://*")
	logDoc := host.OpenDocument("build.log", "x\ny")
	term := host.OpenDocument("term://shell", "$")
	src := host.OpenDocument("main.go", "package main")

	require.NoError(t, host.SetNativeMark('a', logDoc, editor.Position{Line: 1}))
	require.NoError(t, host.SetNativeMark('b', term, editor.Position{Line: 1}))
	require.NoError(t, host.SetNativeMark('c', src, editor.Position{Line: 1}))

	entries := store.List()
	require.Len(t, entries, 1)
	assert.Equal(t, marks.MarkID('c'), entries[0].Mark)
}

func TestSynchronizer_LegacyEvent(t *testing.T) {
	host := editor.NewMemory(editor.Capabilities{LegacyCommands: true})
	store := marks.NewStore(marks.WithAnnotator(host))
	syn, err := NewSynchronizer(store, host, nil, nil)
	require.NoError(t, err)
	require.NoError(t, host.SubscribeLegacy(editor.LegacyMarkSet, syn.Handle))

	doc := host.OpenDocument("a.txt", "1\n2")
	require.NoError(t, host.SetNativeMark('z', doc, editor.Position{Line: 2, Column: 0}))

	loc, ok := store.Scoped('z', doc)
	require.True(t, ok)
	assert.Equal(t, 2, loc.Line)
}
