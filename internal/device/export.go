package device

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hydai/MizukiPrism-sub000/internal/playlist"
)

const (
	exportSource  = "MizukiPrism"
	exportVersion = 1
)

// ExportEnvelope is the file format for local export/import.
type ExportEnvelope struct {
	Version    int                 `json:"version"`
	ExportedAt int64               `json:"exportedAt"`
	Source     string              `json:"source"`
	Playlists  []playlist.Playlist `json:"playlists"`
}

var ErrInvalidExport = errors.New("invalid export file")

// Export serializes the whole local store into the envelope.
func (s *LocalStore) Export() ([]byte, error) {
	pls, err := s.Playlists()
	if err != nil {
		return nil, err
	}
	env := ExportEnvelope{
		Version:    exportVersion,
		ExportedAt: time.Now().UnixMilli(),
		Source:     exportSource,
		Playlists:  pls,
	}
	return json.MarshalIndent(env, "", "  ")
}

// ParseExport validates an export file. The source tag and version are
// checked before any record is considered, records failing shape
// validation are skipped, and the whole file is rejected when no record
// passes.
func ParseExport(data []byte) ([]playlist.Playlist, error) {
	var env ExportEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExport, err)
	}
	if env.Source != exportSource {
		return nil, fmt.Errorf("%w: unknown source %q", ErrInvalidExport, env.Source)
	}
	if env.Version != exportVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidExport, env.Version)
	}

	valid := []playlist.Playlist{}
	for _, pl := range env.Playlists {
		if err := pl.Validate(); err != nil {
			continue
		}
		valid = append(valid, pl)
	}
	if len(valid) == 0 {
		return nil, fmt.Errorf("%w: no valid playlists", ErrInvalidExport)
	}
	return valid, nil
}

// Import merges parsed playlists into the local store using the same
// id-collision rule as login reconciliation: never overwrite silently, keep
// the losing side under a new identity.
func (s *LocalStore) Import(data []byte) (int, error) {
	incoming, err := ParseExport(data)
	if err != nil {
		return 0, err
	}
	existing, err := s.Playlists()
	if err != nil {
		return 0, err
	}

	merged := MergePlaylists(existing, incoming)
	if err := s.ReplaceAll(merged); err != nil {
		return 0, err
	}
	return len(incoming), nil
}
