package ingest

import (
	"encoding/gob"
	"fmt"
	"os"

	"github.com/hazyhaar/cod-population/pkg/header"
)

// snapshotVersion changes whenever the gob layout of Session does.
const snapshotVersion = 1

type snapshot struct {
	Version int
	Session *Session
}

// SaveSnapshot serializes s to a gob-encoded file at path.
func SaveSnapshot(s *Session, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	defer f.Close()

	if err := gob.NewEncoder(f).Encode(snapshot{Version: snapshotVersion, Session: s}); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return f.Close()
}

// LoadSnapshot reads a session written by SaveSnapshot.
func LoadSnapshot(path string) (*Session, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	var snap snapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("snapshot version %d, want %d", snap.Version, snapshotVersion)
	}

	s := NewSession()
	if snap.Session != nil {
		if snap.Session.Rows != nil {
			s.Rows = snap.Session.Rows
		}
		s.Outcomes = snap.Session.Outcomes
		s.Metadata.Countries = snap.Session.Metadata.Countries
		for k, v := range snap.Session.Metadata.ReferenceYears {
			s.Metadata.ReferenceYears[k] = v
		}
		for k, v := range snap.Session.Metadata.ResourceNames {
			s.Metadata.ResourceNames[k] = v
		}
		for k, v := range snap.Session.Metadata.NonMatchingHeaders {
			s.Metadata.NonMatchingHeaders[k] = v
		}
		for k, v := range snap.Session.Metadata.YearSources {
			s.Metadata.YearSources[k] = v
		}
	}

	// gob drops zero values behind pointers, so an age bound of 0 comes
	// back nil. Rebuild the bounds from the label.
	for level, rows := range s.Rows {
		for i := range rows {
			minAge, maxAge, err := header.AgeBounds(rows[i].AgeRange)
			if err != nil {
				return nil, fmt.Errorf("snapshot adm%d row %d: %w", level, i, err)
			}
			rows[i].MinAge, rows[i].MaxAge = minAge, maxAge
		}
	}
	return s, nil
}
