// Package resource materializes a video reference as a local file the
// pipeline can read.
package resource

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"github.com/Pinaire1/jujitsu-app/internal/models"
)

// Local is a readable video on disk. Close removes it only when it was
// downloaded.
type Local struct {
	Path   string
	Digest string
	Size   int64
	temp   bool
}

func (l *Local) Close() error {
	if l == nil || !l.temp {
		return nil
	}
	if err := os.Remove(l.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

type Options struct {
	TempDir        string
	StorageBaseURL string
	MaxBytes       int64
	HTTPClient     *http.Client
	Logger         *zap.Logger
}

type Resolver struct {
	tempDir  string
	storage  string
	maxBytes int64
	client   *http.Client
	logger   *zap.Logger
}

func NewResolver(opts Options) *Resolver {
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Minute}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Resolver{
		tempDir:  opts.TempDir,
		storage:  strings.TrimRight(opts.StorageBaseURL, "/"),
		maxBytes: opts.MaxBytes,
		client:   opts.HTTPClient,
		logger:   opts.Logger.With(zap.String("component", "resolver")),
	}
}

func unavailable(ref string, err error) error {
	return models.NewError(models.KindResourceUnavailable, "resource.Resolve", fmt.Errorf("%s: %w", ref, err))
}

// Resolve accepts a local path, a file:// URL, an http(s) URL or, when a
// storage base URL is configured, a bare storage object path.
func (r *Resolver) Resolve(ctx context.Context, ref string) (*Local, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, unavailable("video", errors.New("empty reference"))
	}

	u, err := url.Parse(ref)
	if err == nil {
		switch u.Scheme {
		case "http", "https":
			return r.download(ctx, ref)
		case "file":
			return r.local(u.Path)
		}
	}

	if _, statErr := os.Stat(ref); statErr == nil || r.storage == "" {
		return r.local(ref)
	}
	return r.download(ctx, r.storage+"/"+strings.TrimLeft(ref, "/"))
}

// ResolveRemote is Resolve for references supplied by remote clients: only
// http(s) URLs and, when a storage base URL is configured, relative storage
// object paths. Nothing is read from the local filesystem.
func (r *Resolver) ResolveRemote(ctx context.Context, ref string) (*Local, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, unavailable("video", errors.New("empty reference"))
	}

	u, err := url.Parse(ref)
	if err != nil {
		return nil, unavailable(ref, err)
	}
	switch u.Scheme {
	case "http", "https":
		return r.download(ctx, ref)
	case "":
	default:
		return nil, unavailable(ref, fmt.Errorf("unsupported scheme %q", u.Scheme))
	}

	if r.storage == "" {
		return nil, unavailable(ref, errors.New("only http(s) URLs are accepted"))
	}
	if !storagePath(ref) {
		return nil, unavailable(ref, errors.New("invalid storage path"))
	}
	return r.download(ctx, r.storage+"/"+ref)
}

// storagePath reports whether ref is a relative object path that stays
// inside the storage root.
func storagePath(ref string) bool {
	if strings.HasPrefix(ref, "/") || strings.Contains(ref, `\`) || filepath.IsAbs(ref) {
		return false
	}
	for _, seg := range strings.Split(ref, "/") {
		if seg == ".." {
			return false
		}
	}
	return true
}

func (r *Resolver) local(p string) (*Local, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, unavailable(p, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, unavailable(p, err)
	}
	if info.IsDir() {
		return nil, unavailable(p, errors.New("is a directory"))
	}

	h, _ := blake2b.New256(nil)
	if _, err := io.Copy(h, f); err != nil {
		return nil, unavailable(p, err)
	}
	return &Local{Path: p, Digest: hex.EncodeToString(h.Sum(nil)), Size: info.Size()}, nil
}

func (r *Resolver) download(ctx context.Context, rawURL string) (*Local, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, unavailable("video url", err)
	}
	ref := redact(req.URL)

	resp, err := r.client.Do(req)
	if err != nil {
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		return nil, unavailable(ref, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, unavailable(ref, fmt.Errorf("status %d", resp.StatusCode))
	}

	if err := os.MkdirAll(r.tempDir, 0o755); err != nil {
		return nil, unavailable(ref, err)
	}
	ext := path.Ext(req.URL.Path)
	if ext == "" {
		ext = ".mp4"
	}
	f, err := os.CreateTemp(r.tempDir, "download_*"+ext)
	if err != nil {
		return nil, unavailable(ref, err)
	}
	local := &Local{Path: f.Name(), temp: true}

	h, _ := blake2b.New256(nil)
	var body io.Reader = resp.Body
	if r.maxBytes > 0 {
		body = io.LimitReader(resp.Body, r.maxBytes+1)
	}
	n, err := io.Copy(io.MultiWriter(f, h), body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && r.maxBytes > 0 && n > r.maxBytes {
		err = fmt.Errorf("larger than %d bytes", r.maxBytes)
	}
	if err != nil {
		_ = local.Close()
		return nil, unavailable(ref, err)
	}

	local.Size = n
	local.Digest = hex.EncodeToString(h.Sum(nil))
	r.logger.Debug("downloaded video",
		zap.String("url", ref),
		zap.String("path", filepath.Base(local.Path)),
		zap.Int64("bytes", n),
	)
	return local, nil
}

// redact drops the query string, which often carries a signature.
func redact(u *url.URL) string {
	c := *u
	c.RawQuery = ""
	return c.String()
}

// Redact returns ref with any URL query removed, for logs and storage.
func Redact(ref string) string {
	u, err := url.Parse(ref)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return ref
	}
	return redact(u)
}
