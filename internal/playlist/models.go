package playlist

import (
	"errors"
	"strings"
)

// Version is a reference to one recorded performance of a song. It is
// immutable once embedded in a playlist; identity is PerformanceID.
type Version struct {
	PerformanceID  string `json:"performanceId"`
	SongTitle      string `json:"songTitle"`
	OriginalArtist string `json:"originalArtist"`
	VideoID        string `json:"videoId"`
	Timestamp      int    `json:"timestamp"`
	EndTimestamp   *int   `json:"endTimestamp,omitempty"`
}

// Playlist is an ordered list of performance references owned by one user.
// CreatedAt/UpdatedAt are epoch milliseconds supplied by the mutating client;
// UpdatedAt is the sole input to conflict resolution.
type Playlist struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Versions  []Version `json:"versions"`
	CreatedAt int64     `json:"createdAt"`
	UpdatedAt int64     `json:"updatedAt"`
}

var (
	ErrInvalidPlaylist = errors.New("invalid playlist")
	ErrNotFound        = errors.New("playlist not found")
)

// Validate checks the record shape: non-empty id and name, sane timestamps,
// every version well-formed and no duplicate performance ids.
func (p Playlist) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return ErrInvalidPlaylist
	}
	name := strings.TrimSpace(p.Name)
	if name == "" || len(name) > 200 {
		return ErrInvalidPlaylist
	}
	if p.CreatedAt < 0 || p.UpdatedAt < 0 {
		return ErrInvalidPlaylist
	}
	seen := make(map[string]struct{}, len(p.Versions))
	for _, v := range p.Versions {
		if err := v.Validate(); err != nil {
			return err
		}
		if _, dup := seen[v.PerformanceID]; dup {
			return ErrInvalidPlaylist
		}
		seen[v.PerformanceID] = struct{}{}
	}
	return nil
}

func (v Version) Validate() error {
	if v.PerformanceID == "" || v.SongTitle == "" || v.VideoID == "" {
		return ErrInvalidPlaylist
	}
	if v.Timestamp < 0 {
		return ErrInvalidPlaylist
	}
	if v.EndTimestamp != nil && *v.EndTimestamp < v.Timestamp {
		return ErrInvalidPlaylist
	}
	return nil
}

// Equal reports whether two playlists carry the same content, ignoring
// nothing: id, name, timestamps and the full version sequence all count.
func (p Playlist) Equal(o Playlist) bool {
	if p.ID != o.ID || p.Name != o.Name ||
		p.CreatedAt != o.CreatedAt || p.UpdatedAt != o.UpdatedAt ||
		len(p.Versions) != len(o.Versions) {
		return false
	}
	for i := range p.Versions {
		a, b := p.Versions[i], o.Versions[i]
		if a.PerformanceID != b.PerformanceID || a.SongTitle != b.SongTitle ||
			a.OriginalArtist != b.OriginalArtist || a.VideoID != b.VideoID ||
			a.Timestamp != b.Timestamp {
			return false
		}
		if (a.EndTimestamp == nil) != (b.EndTimestamp == nil) {
			return false
		}
		if a.EndTimestamp != nil && *a.EndTimestamp != *b.EndTimestamp {
			return false
		}
	}
	return true
}
