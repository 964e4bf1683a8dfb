// Package presence tracks where each asset's bytes are: on local disk, only
// in the cloud tier, mid-download, missing, or unknown because probing
// failed. State is transient and rebuilt by probing the drive; the tracker
// never owns canonical records, never deletes files, and never retries a
// failed hydration itself.
package presence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"icebox/internal/clouddrive"
	"icebox/internal/library"
	"icebox/internal/logging"
	"icebox/internal/services"
)

// State is one asset's presence state. At most one state per asset at any
// instant.
type State string

const (
	StateLocal       State = "local"
	StateDownloading State = "downloading"
	StateCloudOnly   State = "cloud_only"
	StateMissing     State = "missing"
	StateError       State = "error"
)

// Update notifies subscribers that a probed state differs from the last
// known state for that asset.
type Update struct {
	AssetID  int64
	Previous State
	Current  State
}

// Options tune the tracker. The grace window bounds how long EnsureLocal
// waits to confirm a hydration request was accepted; it is not a download
// timeout.
type Options struct {
	HydrationGrace time.Duration
	GracePoll      time.Duration
}

func (o *Options) applyDefaults() {
	if o.HydrationGrace <= 0 {
		o.HydrationGrace = 2 * time.Second
	}
	if o.GracePoll <= 0 {
		o.GracePoll = 50 * time.Millisecond
	}
}

// Tracker is the presence state machine. Safe for concurrent use.
type Tracker struct {
	store  *library.Store
	drive  clouddrive.Drive
	logger *slog.Logger
	opts   Options

	mu          sync.Mutex
	states      map[int64]State
	downloading map[int64]struct{}

	subMu  sync.Mutex
	nextID int
	subs   map[int]chan Update
}

// NewTracker builds a Tracker over the given store and drive.
func NewTracker(store *library.Store, drive clouddrive.Drive, logger *slog.Logger, opts Options) *Tracker {
	opts.applyDefaults()
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Tracker{
		store:       store,
		drive:       drive,
		logger:      logging.NewComponentLogger(logger, "presence"),
		opts:        opts,
		states:      make(map[int64]State),
		downloading: make(map[int64]struct{}),
		subs:        make(map[int]chan Update),
	}
}

// Status probes the drive for the asset's current presence. A probe failure
// yields StateError together with the wrapped cause; missing records or
// unresolvable paths yield StateMissing with a nil error.
func (t *Tracker) Status(ctx context.Context, assetID int64) (State, error) {
	asset, err := t.store.GetAsset(ctx, assetID)
	if err != nil {
		state := t.record(assetID, StateError)
		return state, services.Wrap(services.ErrProbeFailed, "presence", "status", "load asset record", err)
	}
	if asset == nil {
		return t.record(assetID, StateMissing), nil
	}

	info, err := t.drive.Stat(ctx, asset.RelPath)
	if errors.Is(err, clouddrive.ErrNotExist) {
		return t.record(assetID, StateMissing), nil
	}
	if err != nil {
		state := t.record(assetID, StateError)
		return state, services.Wrap(services.ErrProbeFailed, "presence", "status", fmt.Sprintf("probe %s", asset.RelPath), err)
	}

	return t.record(assetID, stateFromInfo(info)), nil
}

func stateFromInfo(info clouddrive.Info) State {
	switch {
	case info.LocalPresent:
		return StateLocal
	case info.Download == clouddrive.DownloadInProgress:
		return StateDownloading
	case info.RemoteReady:
		return StateCloudOnly
	default:
		return StateMissing
	}
}

// EnsureLocal makes sure the asset's bytes are, or are becoming, local. If
// already local it is a no-op. If cloud-only it issues a hydration request
// and returns once the drive confirms the request within the grace window;
// completion is observed through later Status calls, never awaited here.
func (t *Tracker) EnsureLocal(ctx context.Context, assetID int64) error {
	state, err := t.Status(ctx, assetID)
	if err != nil {
		return err
	}
	switch state {
	case StateLocal, StateDownloading:
		return nil
	case StateMissing:
		return services.Wrap(services.ErrNotFound, "presence", "ensure-local", fmt.Sprintf("asset %d has no resolvable file", assetID), nil)
	}

	asset, err := t.store.GetAsset(ctx, assetID)
	if err != nil {
		return services.Wrap(services.ErrProbeFailed, "presence", "ensure-local", "load asset record", err)
	}
	if asset == nil {
		return services.Wrap(services.ErrNotFound, "presence", "ensure-local", fmt.Sprintf("asset %d vanished", assetID), nil)
	}

	if err := t.drive.RequestHydration(ctx, asset.RelPath); err != nil {
		t.record(assetID, StateError)
		return services.Wrap(services.ErrHydrationFailed, "presence", "ensure-local", fmt.Sprintf("request hydration of %s", asset.RelPath), err)
	}
	t.logger.Info("hydration requested",
		logging.Int64(logging.FieldAssetID, assetID),
		logging.String("rel_path", asset.RelPath))

	// Confirm acceptance within the grace window. The file may even finish
	// downloading inside it for small files.
	deadline := time.Now().Add(t.opts.HydrationGrace)
	for {
		info, statErr := t.drive.Stat(ctx, asset.RelPath)
		if statErr == nil {
			if info.LocalPresent {
				t.record(assetID, StateLocal)
				return nil
			}
			if info.Download == clouddrive.DownloadInProgress {
				t.record(assetID, StateDownloading)
				return nil
			}
		}
		if time.Now().After(deadline) {
			t.record(assetID, StateError)
			return services.Wrap(services.ErrHydrationFailed, "presence", "ensure-local",
				fmt.Sprintf("hydration of %s not confirmed within %s", asset.RelPath, t.opts.HydrationGrace), statErr)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(t.opts.GracePoll):
		}
	}
}

// DownloadingSet returns the assets with an in-flight hydration request,
// sorted by identifier.
func (t *Tracker) DownloadingSet() []int64 {
	t.mu.Lock()
	ids := make([]int64, 0, len(t.downloading))
	for id := range t.downloading {
		ids = append(ids, id)
	}
	t.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// LastKnown returns the cached state for an asset without probing. The bool
// reports whether the asset has been probed before.
func (t *Tracker) LastKnown(assetID int64) (State, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	state, ok := t.states[assetID]
	return state, ok
}

// Forget drops the cached state for an asset, e.g. after its record is
// deleted.
func (t *Tracker) Forget(assetID int64) {
	t.mu.Lock()
	delete(t.states, assetID)
	delete(t.downloading, assetID)
	t.mu.Unlock()
}

// Subscribe registers a presence-change observer. Delivery is best-effort: a
// subscriber that falls behind drops updates rather than blocking probes.
func (t *Tracker) Subscribe() (<-chan Update, func()) {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	id := t.nextID
	t.nextID++
	ch := make(chan Update, 16)
	t.subs[id] = ch
	cancel := func() {
		t.subMu.Lock()
		defer t.subMu.Unlock()
		if sub, ok := t.subs[id]; ok {
			delete(t.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// record stores the probed state, maintains the downloading set, and
// publishes a change event when the state moved.
func (t *Tracker) record(assetID int64, state State) State {
	t.mu.Lock()
	previous, known := t.states[assetID]
	t.states[assetID] = state
	if state == StateDownloading {
		t.downloading[assetID] = struct{}{}
	} else {
		delete(t.downloading, assetID)
	}
	t.mu.Unlock()

	if known && previous == state {
		return state
	}
	t.publish(Update{AssetID: assetID, Previous: previous, Current: state})
	return state
}

func (t *Tracker) publish(update Update) {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	for _, ch := range t.subs {
		select {
		case ch <- update:
		default:
		}
	}
}
