// Package video turns a local video file into an ordered stream of frames.
package video

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/Pinaire1/jujitsu-app/internal/models"
)

// Decoder yields frames in index order. Next returns io.EOF after the last
// frame; any other error means the stream broke and frames already returned
// remain valid. FrameRate is fixed for the life of the decoder and is 0 when
// the container does not report one.
type Decoder interface {
	FrameRate() float64
	Next() (models.Frame, error)
	Close() error
}

type Opener interface {
	Open(ctx context.Context, path string) (Decoder, error)
}

type Options struct {
	FFmpegPath  string
	FFprobePath string
	Logger      *zap.Logger
}

type Factory func(Options) Opener

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{
		"ffmpeg": func(o Options) Opener { return NewFFmpegOpener(o) },
	}
)

// Register makes a decoder backend available to NewOpener.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

func NewOpener(name string, opts Options) (Opener, error) {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown decoder %q (available: %v)", name, Backends())
	}
	return f(opts), nil
}

func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
