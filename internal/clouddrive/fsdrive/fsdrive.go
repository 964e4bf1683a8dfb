// Package fsdrive implements clouddrive.Drive with a plain directory standing
// in for the cloud tier. The mirror directory holds the durable copy of every
// file; the local tree holds whatever is currently hydrated. Used by tests
// and for local development without cloud credentials.
package fsdrive

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"icebox/internal/clouddrive"
	"icebox/internal/fileutil"
)

const partSuffix = ".icebox-part"

// Drive is a mirror-directory clouddrive.Drive.
type Drive struct {
	root   string
	mirror string

	// HydrateDelay inserts an artificial pause before each hydration copy.
	// Zero in production; tests raise it to observe the downloading state.
	HydrateDelay time.Duration

	mu       sync.Mutex
	inflight map[string]struct{}
}

// New returns a Drive rooted at the local tree root with mirror as the cloud
// tier. Both directories are created if missing.
func New(root, mirror string) (*Drive, error) {
	if root == "" || mirror == "" {
		return nil, fmt.Errorf("fsdrive: root and mirror directories are required")
	}
	for _, dir := range []string{root, mirror} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("fsdrive: create %s: %w", dir, err)
		}
	}
	return &Drive{
		root:     root,
		mirror:   mirror,
		inflight: make(map[string]struct{}),
	}, nil
}

// Root returns the local tree root.
func (d *Drive) Root() string { return d.root }

// Mirror returns the directory standing in for the cloud tier.
func (d *Drive) Mirror() string { return d.mirror }

// Stat reports the two-tier state of relPath.
func (d *Drive) Stat(ctx context.Context, relPath string) (clouddrive.Info, error) {
	if err := ctx.Err(); err != nil {
		return clouddrive.Info{}, err
	}
	info := clouddrive.Info{RelPath: relPath, Download: clouddrive.DownloadNone}

	localStat, localErr := os.Stat(filepath.Join(d.root, relPath))
	mirrorStat, mirrorErr := os.Stat(filepath.Join(d.mirror, relPath))
	if localErr != nil && mirrorErr != nil {
		return clouddrive.Info{}, clouddrive.ErrNotExist
	}
	if mirrorErr == nil {
		info.RemoteReady = true
		info.IsDir = mirrorStat.IsDir()
		info.SizeBytes = mirrorStat.Size()
		info.ModTime = mirrorStat.ModTime()
	}
	if localErr == nil {
		info.LocalPresent = true
		info.IsDir = localStat.IsDir()
		info.SizeBytes = localStat.Size()
		info.ModTime = localStat.ModTime()
	}

	d.mu.Lock()
	if _, ok := d.inflight[relPath]; ok {
		info.Download = clouddrive.DownloadInProgress
	}
	d.mu.Unlock()
	return info, nil
}

// Walk enumerates the mirror directory recursively. Evicted files still
// appear because the mirror holds the durable copy.
func (d *Drive) Walk(ctx context.Context, fn func(clouddrive.Info) error) error {
	return filepath.WalkDir(d.mirror, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if path == d.mirror {
			return nil
		}
		rel, relErr := filepath.Rel(d.mirror, path)
		if relErr != nil {
			return relErr
		}
		if entry.IsDir() {
			return fn(clouddrive.Info{RelPath: rel, IsDir: true, RemoteReady: true})
		}
		if filepath.Ext(path) == partSuffix {
			return nil
		}
		info, infoErr := d.Stat(ctx, rel)
		if infoErr != nil {
			return infoErr
		}
		return fn(info)
	})
}

// RequestHydration starts copying relPath from the mirror into the local
// tree. Repeated requests while a copy is in flight are no-ops.
func (d *Drive) RequestHydration(ctx context.Context, relPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	src := filepath.Join(d.mirror, relPath)
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("fsdrive: hydrate %s: %w", relPath, clouddrive.ErrNotExist)
	}

	d.mu.Lock()
	if _, running := d.inflight[relPath]; running {
		d.mu.Unlock()
		return nil
	}
	d.inflight[relPath] = struct{}{}
	d.mu.Unlock()

	go d.hydrate(relPath, src)
	return nil
}

func (d *Drive) hydrate(relPath, src string) {
	defer func() {
		d.mu.Lock()
		delete(d.inflight, relPath)
		d.mu.Unlock()
	}()
	if d.HydrateDelay > 0 {
		time.Sleep(d.HydrateDelay)
	}
	dst := filepath.Join(d.root, relPath)
	part := dst + partSuffix
	if err := fileutil.CopyFileVerified(src, part); err != nil {
		os.Remove(part)
		return
	}
	if err := os.Rename(part, dst); err != nil {
		os.Remove(part)
	}
}

// EvictLocal removes the local copy of relPath and leaves the mirror alone.
func (d *Drive) EvictLocal(ctx context.Context, relPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := filepath.Join(d.root, relPath)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("fsdrive: evict %s: %w", relPath, err)
	}
	return nil
}

// Put copies src into both tiers so the file is immediately local and
// durable.
func (d *Drive) Put(ctx context.Context, srcPath, relPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	local := filepath.Join(d.root, relPath)
	if err := fileutil.CopyFileVerified(srcPath, local); err != nil {
		return fmt.Errorf("fsdrive: put local %s: %w", relPath, err)
	}
	remote := filepath.Join(d.mirror, relPath)
	if err := fileutil.CopyFileVerified(srcPath, remote); err != nil {
		return fmt.Errorf("fsdrive: put mirror %s: %w", relPath, err)
	}
	return nil
}

var _ clouddrive.Drive = (*Drive)(nil)
