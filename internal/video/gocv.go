//go:build gocv

package video

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/Pinaire1/jujitsu-app/internal/models"
)

func init() {
	Register("gocv", func(o Options) Opener { return NewGoCVOpener(o) })
}

// GoCVOpener decodes through OpenCV and hands frames on as JPEG.
type GoCVOpener struct {
	logger *zap.Logger
}

func NewGoCVOpener(opts Options) *GoCVOpener {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GoCVOpener{logger: logger.With(zap.String("component", "gocv"))}
}

func (o *GoCVOpener) Open(_ context.Context, path string) (Decoder, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, models.NewError(models.KindResourceUnavailable, "video.Open", err)
	}

	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, models.NewError(models.KindDecode, "video.Open", err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, models.NewError(models.KindDecode, "video.Open", errors.New("capture did not open"))
	}

	d := &gocvDecoder{
		vc:        vc,
		mat:       gocv.NewMat(),
		frameRate: vc.Get(gocv.VideoCaptureFPS),
		total:     int(vc.Get(gocv.VideoCaptureFrameCount)),
	}
	o.logger.Debug("decoding video",
		zap.String("path", path),
		zap.Float64("frame_rate", d.frameRate),
		zap.Int("frame_count", d.total),
	)
	return d, nil
}

type gocvDecoder struct {
	vc        *gocv.VideoCapture
	mat       gocv.Mat
	frameRate float64
	total     int
	index     int
	closed    bool
}

func (d *gocvDecoder) FrameRate() float64 { return d.frameRate }

func (d *gocvDecoder) Next() (models.Frame, error) {
	if d.closed {
		return models.Frame{}, errors.New("decoder closed")
	}
	if ok := d.vc.Read(&d.mat); !ok || d.mat.Empty() {
		// OpenCV reports end of stream and read failures the same way; a
		// short stream against the container's frame count is the only hint.
		if d.total > 0 && d.index < d.total-1 {
			return models.Frame{}, models.NewError(models.KindDecode, "video.Next",
				errors.New("capture stopped before the reported frame count"))
		}
		return models.Frame{}, io.EOF
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, d.mat)
	if err != nil {
		return models.Frame{}, models.NewError(models.KindDecode, "video.Next", err)
	}
	defer buf.Close()

	f := models.Frame{
		Index:  d.index,
		Width:  d.mat.Cols(),
		Height: d.mat.Rows(),
		Format: models.PixelFormatJPEG,
		Data:   bytes.Clone(buf.GetBytes()),
	}
	d.index++
	return f, nil
}

func (d *gocvDecoder) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	_ = d.mat.Close()
	return d.vc.Close()
}
