// Package s3drive implements clouddrive.Drive against an S3-compatible
// bucket. Object keys mirror library-relative paths under an optional prefix;
// the local tree works exactly as with fsdrive.
package s3drive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"icebox/internal/clouddrive"
	"icebox/internal/fileutil"
)

const partSuffix = ".icebox-part"

// Options configure the bucket side of a Drive. When AccessKeyID and
// SecretAccessKey are empty the AWS default credential chain is used.
// Endpoint is optional and switches the client to path-style addressing for
// S3-compatible services.
type Options struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// Drive is an S3-backed clouddrive.Drive.
type Drive struct {
	root   string
	bucket string
	prefix string
	client *s3.Client

	mu       sync.Mutex
	inflight map[string]struct{}
}

// New builds a Drive rooted at the local tree root, backed by the bucket
// described in opts.
func New(ctx context.Context, root string, opts Options) (*Drive, error) {
	if root == "" {
		return nil, fmt.Errorf("s3drive: local root directory is required")
	}
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3drive: bucket is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("s3drive: create root: %w", err)
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3drive: load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = &opts.Endpoint
			o.UsePathStyle = true
		}
	})

	return &Drive{
		root:     root,
		bucket:   opts.Bucket,
		prefix:   strings.Trim(opts.Prefix, "/"),
		client:   client,
		inflight: make(map[string]struct{}),
	}, nil
}

// Root returns the local tree root.
func (d *Drive) Root() string { return d.root }

func (d *Drive) key(relPath string) string {
	return path.Join(d.prefix, filepath.ToSlash(relPath))
}

func (d *Drive) relFromKey(key string) string {
	rel := key
	if d.prefix != "" {
		rel = strings.TrimPrefix(rel, d.prefix+"/")
	}
	return filepath.FromSlash(rel)
}

// Stat reports the two-tier state of relPath. The remote side costs one
// HeadObject call.
func (d *Drive) Stat(ctx context.Context, relPath string) (clouddrive.Info, error) {
	info := clouddrive.Info{RelPath: relPath, Download: clouddrive.DownloadNone}

	localStat, localErr := os.Stat(filepath.Join(d.root, relPath))
	if localErr == nil {
		info.LocalPresent = true
		info.IsDir = localStat.IsDir()
		info.SizeBytes = localStat.Size()
		info.ModTime = localStat.ModTime()
	}

	key := d.key(relPath)
	head, headErr := d.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &d.bucket,
		Key:    &key,
	})
	switch {
	case headErr == nil:
		info.RemoteReady = true
		if head.ContentLength != nil {
			info.SizeBytes = *head.ContentLength
		}
		if head.LastModified != nil {
			info.ModTime = *head.LastModified
		}
	case isNotFound(headErr):
		// Local-only file, or nothing at all.
	default:
		return clouddrive.Info{}, fmt.Errorf("s3drive: head %s: %w", key, headErr)
	}

	if !info.LocalPresent && !info.RemoteReady {
		return clouddrive.Info{}, clouddrive.ErrNotExist
	}

	d.mu.Lock()
	if _, ok := d.inflight[relPath]; ok {
		info.Download = clouddrive.DownloadInProgress
	}
	d.mu.Unlock()
	return info, nil
}

func isNotFound(err error) bool {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	return errors.As(err, &notFound) || errors.As(err, &noSuchKey)
}

// Walk lists the bucket under the configured prefix. Object metadata comes
// from the listing so enumeration costs one request per 1000 objects.
func (d *Drive) Walk(ctx context.Context, fn func(clouddrive.Info) error) error {
	input := &s3.ListObjectsV2Input{Bucket: &d.bucket}
	if d.prefix != "" {
		p := d.prefix + "/"
		input.Prefix = &p
	}
	paginator := s3.NewListObjectsV2Paginator(d.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("s3drive: list objects: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			rel := d.relFromKey(*obj.Key)
			if rel == "" || strings.HasSuffix(rel, "/") {
				continue
			}
			info := clouddrive.Info{
				RelPath:     rel,
				RemoteReady: true,
				Download:    clouddrive.DownloadNone,
			}
			if obj.Size != nil {
				info.SizeBytes = *obj.Size
			}
			if obj.LastModified != nil {
				info.ModTime = *obj.LastModified
			}
			if localStat, err := os.Stat(filepath.Join(d.root, rel)); err == nil {
				info.LocalPresent = true
				info.SizeBytes = localStat.Size()
				info.ModTime = localStat.ModTime()
			}
			d.mu.Lock()
			if _, ok := d.inflight[rel]; ok {
				info.Download = clouddrive.DownloadInProgress
			}
			d.mu.Unlock()
			if err := fn(info); err != nil {
				return err
			}
		}
	}
	return nil
}

// RequestHydration starts downloading relPath into the local tree. Repeated
// requests while a download is in flight are no-ops.
func (d *Drive) RequestHydration(ctx context.Context, relPath string) error {
	key := d.key(relPath)
	if _, err := d.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &d.bucket,
		Key:    &key,
	}); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("s3drive: hydrate %s: %w", relPath, clouddrive.ErrNotExist)
		}
		return fmt.Errorf("s3drive: hydrate head %s: %w", key, err)
	}

	d.mu.Lock()
	if _, running := d.inflight[relPath]; running {
		d.mu.Unlock()
		return nil
	}
	d.inflight[relPath] = struct{}{}
	d.mu.Unlock()

	go d.download(relPath, key)
	return nil
}

func (d *Drive) download(relPath, key string) {
	defer func() {
		d.mu.Lock()
		delete(d.inflight, relPath)
		d.mu.Unlock()
	}()

	ctx := context.Background()
	out, err := d.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &d.bucket,
		Key:    &key,
	})
	if err != nil {
		return
	}
	defer out.Body.Close()

	dst := filepath.Join(d.root, relPath)
	part := dst + partSuffix
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return
	}
	f, err := os.Create(part)
	if err != nil {
		return
	}
	if _, err := f.ReadFrom(out.Body); err != nil {
		f.Close()
		os.Remove(part)
		return
	}
	if err := f.Close(); err != nil {
		os.Remove(part)
		return
	}
	if err := os.Rename(part, dst); err != nil {
		os.Remove(part)
	}
}

// EvictLocal removes the local copy of relPath and leaves the bucket alone.
func (d *Drive) EvictLocal(ctx context.Context, relPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(d.root, relPath)); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("s3drive: evict %s: %w", relPath, err)
	}
	return nil
}

// Put copies src into the local tree and uploads it to the bucket.
func (d *Drive) Put(ctx context.Context, srcPath, relPath string) error {
	local := filepath.Join(d.root, relPath)
	if err := fileutil.CopyFileVerified(srcPath, local); err != nil {
		return fmt.Errorf("s3drive: put local %s: %w", relPath, err)
	}

	f, err := os.Open(local)
	if err != nil {
		return fmt.Errorf("s3drive: open for upload: %w", err)
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		return fmt.Errorf("s3drive: stat for upload: %w", err)
	}

	key := d.key(relPath)
	size := stat.Size()
	if _, err := d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &d.bucket,
		Key:           &key,
		Body:          f,
		ContentLength: &size,
	}); err != nil {
		return fmt.Errorf("s3drive: upload %s: %w", key, err)
	}
	return nil
}

var _ clouddrive.Drive = (*Drive)(nil)
