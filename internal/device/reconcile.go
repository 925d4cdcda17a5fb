package device

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/hydai/MizukiPrism-sub000/internal/playlist"
)

// State is the reconciliation phase on the login transition.
type State int

const (
	StateNoAuth State = iota
	StateAuthenticating
	StateComparingStores
	StateAwaitingMergeChoice
	StateReconciled
)

func (s State) String() string {
	switch s {
	case StateNoAuth:
		return "NoAuth"
	case StateAuthenticating:
		return "Authenticating"
	case StateComparingStores:
		return "ComparingStores"
	case StateAwaitingMergeChoice:
		return "AwaitingMergeChoice"
	case StateReconciled:
		return "Reconciled"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MergeChoice is the user's decision when both sides hold playlists.
type MergeChoice string

const (
	MergeChoiceMerge MergeChoice = "merge"
	MergeChoiceCloud MergeChoice = "cloud"
	MergeChoiceLocal MergeChoice = "local"
)

// MergePrompt carries the counts shown to the user when a decision is
// needed.
type MergePrompt struct {
	LocalCount int
	CloudCount int
}

var ErrNoPendingMerge = errors.New("no merge decision pending")

// Reconciler drives the local-vs-cloud comparison after login. Single
// logical sequence per device; not safe for concurrent use.
type Reconciler struct {
	local  *LocalStore
	client *Client

	state State
	cloud []playlist.Playlist
}

func NewReconciler(local *LocalStore, client *Client) *Reconciler {
	return &Reconciler{local: local, client: client, state: StateNoAuth}
}

func (r *Reconciler) State() State { return r.state }

// Login requests verification of an OTP code and, on success, runs the
// store comparison. A nil prompt means reconciliation finished without
// user input; otherwise the caller must follow up with Resolve.
func (r *Reconciler) Login(ctx context.Context, email, code string) (*MergePrompt, error) {
	r.state = StateAuthenticating
	if _, err := r.client.VerifyCode(ctx, email, code); err != nil {
		r.state = StateNoAuth
		return nil, err
	}
	return r.compare(ctx)
}

// BeginWithSession runs the comparison for an already-authenticated client
// (e.g. a stored token that still verifies).
func (r *Reconciler) BeginWithSession(ctx context.Context) (*MergePrompt, error) {
	if r.client.Token() == "" {
		return nil, errors.New("no session token")
	}
	r.state = StateAuthenticating
	return r.compare(ctx)
}

// compare fetches both stores and decides the next transition. Transient
// failures leave the machine in ComparingStores: the session is still good
// and the caller retries with BeginWithSession instead of re-authenticating.
func (r *Reconciler) compare(ctx context.Context) (*MergePrompt, error) {
	r.state = StateComparingStores

	cloud, err := r.client.Playlists(ctx)
	if err != nil {
		return nil, err
	}
	localCount, err := r.local.Count()
	if err != nil {
		return nil, err
	}

	switch {
	case localCount == 0 && len(cloud) == 0:
		r.state = StateReconciled
		return nil, nil

	case localCount == 0:
		// Only the cloud has data: download it silently.
		if err := r.local.ReplaceAll(cloud); err != nil {
			return nil, err
		}
		r.state = StateReconciled
		return nil, nil

	case len(cloud) == 0:
		// Only this device has data: push it silently.
		local, err := r.local.Playlists()
		if err != nil {
			return nil, err
		}
		if _, err := r.client.SyncAll(ctx, local); err != nil {
			return nil, err
		}
		r.state = StateReconciled
		return nil, nil
	}

	// Both sides hold independent data: the user decides.
	r.cloud = cloud
	r.state = StateAwaitingMergeChoice
	return &MergePrompt{LocalCount: localCount, CloudCount: len(cloud)}, nil
}

// Resolve applies the user's merge decision and pushes the resulting set to
// whichever side needs it. Any choice ends in Reconciled.
func (r *Reconciler) Resolve(ctx context.Context, choice MergeChoice) error {
	if r.state != StateAwaitingMergeChoice {
		return ErrNoPendingMerge
	}

	switch choice {
	case MergeChoiceCloud:
		if err := r.local.ReplaceAll(r.cloud); err != nil {
			return err
		}

	case MergeChoiceLocal:
		local, err := r.local.Playlists()
		if err != nil {
			return err
		}
		if _, err := r.client.SyncAll(ctx, local); err != nil {
			return err
		}

	case MergeChoiceMerge:
		local, err := r.local.Playlists()
		if err != nil {
			return err
		}
		merged := MergePlaylists(local, r.cloud)
		if err := r.local.ReplaceAll(merged); err != nil {
			return err
		}
		if _, err := r.client.SyncAll(ctx, merged); err != nil {
			return err
		}

	default:
		return fmt.Errorf("unknown merge choice %q", choice)
	}

	r.cloud = nil
	r.state = StateReconciled
	return nil
}

// MergePlaylists unions two sets by playlist id. On an id collision the
// record with the larger updatedAt keeps the id (ties go to cloud) and the
// losing record, unless identical, is retained under a fresh id with an
// "(imported)" name suffix. Nothing is silently discarded.
func MergePlaylists(local, cloud []playlist.Playlist) []playlist.Playlist {
	localByID := make(map[string]playlist.Playlist, len(local))
	for _, pl := range local {
		localByID[pl.ID] = pl
	}

	merged := make([]playlist.Playlist, 0, len(local)+len(cloud))
	for _, c := range cloud {
		l, collides := localByID[c.ID]
		if !collides {
			merged = append(merged, c)
			continue
		}
		delete(localByID, c.ID)

		if c.Equal(l) {
			merged = append(merged, c)
			continue
		}
		winner, loser := c, l
		if l.UpdatedAt > c.UpdatedAt {
			winner, loser = l, c
		}
		merged = append(merged, winner, renamedCopy(loser))
	}

	// Local-only ids pass through unchanged.
	for _, l := range local {
		if _, remains := localByID[l.ID]; remains {
			merged = append(merged, l)
		}
	}
	return merged
}

func renamedCopy(pl playlist.Playlist) playlist.Playlist {
	pl.ID = uuid.NewString()
	pl.Name = pl.Name + " (imported)"
	return pl
}
