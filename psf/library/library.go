// Package library implements the Protocol Library (spec §4.3): it scans a
// directory tree of .psf files, parses each, and indexes the resulting
// ASTs by protocol_id with case/underscore/dash-insensitive aliasing.
// A single file failing to parse is logged and excluded; the Library does
// not refuse to start (spec §4.3, §4.10 "PsfParseError: log and skip
// file; continue").
package library

import (
	"io/fs"
	"strings"

	"github.com/0xinf0/nooshdaroo-sub001/internal/coreerr"
	"github.com/0xinf0/nooshdaroo-sub001/internal/corelog"
	"github.com/0xinf0/nooshdaroo-sub001/psf"
)

// Meta is the queryable summary of a protocol, per spec §4.3.
type Meta struct {
	DefaultPort  uint16
	Transport    psf.Transport
	EvasionScore float64
}

// Library is an immutable, read-only-after-construction protocol table.
// It is safe for concurrent use by every connection task (spec §5 "The
// Library (C3) is read-mostly and shared by all tasks").
type Library struct {
	byID    map[string]*psf.Protocol
	aliases map[string]string // normalized alias -> canonical id
}

// normalize folds case and strips '-'/'_' so "https-google-com" and
// "https_google_com" index to the same entry (spec §4.3).
func normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, "_", "")
	return s
}

// Load parses every *.psf file under fsys (recursively), builds the
// protocol table, and returns the library plus any per-file parse errors
// encountered (for logging by the caller; these are not fatal).
func Load(fsys fs.FS) (*Library, []error) {
	lib := &Library{
		byID:    map[string]*psf.Protocol{},
		aliases: map[string]string{},
	}
	var errs []error

	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			errs = append(errs, err)
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(path, ".psf") {
			return nil
		}
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			errs = append(errs, err)
			return nil
		}
		proto, parseErrs := psf.Parse(path, string(data))
		if len(parseErrs) > 0 {
			for _, pe := range parseErrs {
				corelog.Record(&corelog.GeneralMessage{
					Severity: corelog.SeverityWarning,
					Content:  coreerr.New("skipping ", path).Base(pe).WithKind(coreerr.PsfParseError).AtWarning(),
				})
				errs = append(errs, pe)
			}
			return nil
		}
		if _, dup := lib.byID[proto.ID]; dup {
			dupErr := coreerr.New("duplicate protocol_id ", proto.ID, " in ", path).WithKind(coreerr.PsfParseError)
			corelog.Record(&corelog.GeneralMessage{Severity: corelog.SeverityWarning, Content: dupErr})
			errs = append(errs, dupErr)
			return nil
		}
		proto.SourceFile = path
		lib.byID[proto.ID] = proto
		lib.aliases[normalize(proto.ID)] = proto.ID
		return nil
	})
	if err != nil {
		errs = append(errs, err)
	}

	return lib, errs
}

// Get resolves id (or any case/underscore/dash variant of it) to its
// Protocol, failing UnknownProtocol if no such id was ever loaded.
func (l *Library) Get(id string) (*psf.Protocol, error) {
	canon, ok := l.aliases[normalize(id)]
	if !ok {
		return nil, coreerr.New("unknown protocol ", id).WithKind(coreerr.UnknownProtocol)
	}
	return l.byID[canon], nil
}

// Meta returns the queryable metadata for id (spec §4.3).
func (l *Library) Meta(id string) (Meta, error) {
	p, err := l.Get(id)
	if err != nil {
		return Meta{}, err
	}
	return Meta{
		DefaultPort:  p.DefaultPort,
		Transport:    p.Transport,
		EvasionScore: p.Detection.EvasionScore(),
	}, nil
}

// IDs returns every loaded protocol_id, in no particular order.
func (l *Library) IDs() []string {
	out := make([]string, 0, len(l.byID))
	for id := range l.byID {
		out = append(out, id)
	}
	return out
}

// Len returns the number of successfully loaded protocols.
func (l *Library) Len() int { return len(l.byID) }
