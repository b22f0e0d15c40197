package marks

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
)

// Snapshot is a detached copy of every entry, as written to disk.
type Snapshot struct {
	Global map[MarkID]Location
	Scoped map[MarkID]map[DocumentID]Location
}

func (s Snapshot) entries() []Entry {
	var out []Entry
	for mark, loc := range s.Global {
		out = append(out, Entry{Mark: mark, Document: loc.Document, Line: loc.Line, Column: loc.Column, Handle: loc.Handle})
	}
	for mark, docs := range s.Scoped {
		for doc, loc := range docs {
			out = append(out, Entry{Mark: mark, Document: doc, Line: loc.Line, Column: loc.Column, Handle: loc.Handle})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Mark != b.Mark {
			return a.Mark < b.Mark
		}
		if a.Document != b.Document {
			return a.Document < b.Document
		}
		return a.Line < b.Line
	})
	return out
}

// ErrMalformed is returned when the persisted document is not an object.
var ErrMalformed = errors.New("marks: malformed snapshot")

// persistedLocation is the on-disk shape of a Location.
type persistedLocation struct {
	Document DocumentID `json:"documentId"`
	Line     int        `json:"line"`
	Column   int        `json:"column"`
	Handle   Handle     `json:"annotationHandle,omitempty"`
}

func toPersisted(loc Location) persistedLocation {
	return persistedLocation{
		Document: loc.Document,
		Line:     loc.Line,
		Column:   loc.Column,
		Handle:   loc.Handle,
	}
}

// Encode serializes snap. Top-level keys are mark characters; upper-case
// marks hold one location, the others hold an object keyed by document id.
func Encode(snap Snapshot) ([]byte, error) {
	doc := make(map[string]interface{}, len(snap.Global)+len(snap.Scoped))
	for mark, loc := range snap.Global {
		if loc.Line <= 0 {
			continue
		}
		doc[mark.String()] = toPersisted(loc)
	}
	for mark, docs := range snap.Scoped {
		sub := make(map[string]persistedLocation, len(docs))
		for id, loc := range docs {
			if loc.Line <= 0 {
				continue
			}
			loc.Document = id
			sub[id.String()] = toPersisted(loc)
		}
		if len(sub) > 0 {
			doc[mark.String()] = sub
		}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marks: encode snapshot: %w", err)
	}
	return append(data, '\n'), nil
}

// Decode parses a persisted snapshot.
//
// A top-level value that is not an object yields ErrMalformed. Individual
// entries that cannot be read are skipped and reported in the returned
// warnings. A flat location stored under a scoped key is migrated into a
// single document entry. Missing handles decode as zero and are allocated
// on Restore.
func Decode(data []byte) (Snapshot, []string, error) {
	snap := Snapshot{
		Global: make(map[MarkID]Location),
		Scoped: make(map[MarkID]map[DocumentID]Location),
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return snap, nil, nil
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil || top == nil {
		return Snapshot{}, nil, ErrMalformed
	}

	var warnings []string
	warn := func(format string, args ...interface{}) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	}

	for key, raw := range top {
		mark, ok := ParseMarkID(key)
		if !ok {
			warn("skipping invalid mark key %q", key)
			continue
		}

		if mark.Global() {
			loc, err := decodeLocation(raw)
			if err != nil {
				warn("skipping mark %s: %v", mark, err)
				continue
			}
			snap.Global[mark] = loc
			continue
		}

		var sub map[string]json.RawMessage
		if err := json.Unmarshal(raw, &sub); err != nil || sub == nil {
			warn("skipping mark %s: not an object", mark)
			continue
		}
		docs := make(map[DocumentID]Location)
		if _, legacy := sub["line"]; legacy {
			loc, err := decodeLocation(raw)
			if err != nil {
				warn("skipping legacy mark %s: %v", mark, err)
				continue
			}
			docs[loc.Document] = loc
		} else {
			for docKey, docRaw := range sub {
				id, err := strconv.Atoi(docKey)
				if err != nil {
					warn("skipping mark %s: invalid document key %q", mark, docKey)
					continue
				}
				loc, err := decodeLocation(docRaw)
				if err != nil {
					warn("skipping mark %s in document %s: %v", mark, docKey, err)
					continue
				}
				loc.Document = DocumentID(id)
				docs[loc.Document] = loc
			}
		}
		if len(docs) > 0 {
			snap.Scoped[mark] = docs
		}
	}
	return snap, warnings, nil
}

func decodeLocation(raw json.RawMessage) (Location, error) {
	var p persistedLocation
	if err := json.Unmarshal(raw, &p); err != nil {
		return Location{}, fmt.Errorf("decode location: %w", err)
	}
	if p.Line <= 0 {
		return Location{}, fmt.Errorf("line %d is not positive", p.Line)
	}
	return Location{
		Document: p.Document,
		Line:     p.Line,
		Column:   max(p.Column, 0),
		Handle:   p.Handle,
	}, nil
}
