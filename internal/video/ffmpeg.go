package video

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/Pinaire1/jujitsu-app/internal/models"
)

// FFmpegOpener probes with ffprobe and streams raw rgb24 frames out of ffmpeg.
type FFmpegOpener struct {
	ffmpeg  string
	ffprobe string
	logger  *zap.Logger
}

func NewFFmpegOpener(opts Options) *FFmpegOpener {
	o := &FFmpegOpener{ffmpeg: opts.FFmpegPath, ffprobe: opts.FFprobePath, logger: opts.Logger}
	if o.ffmpeg == "" {
		o.ffmpeg = "ffmpeg"
	}
	if o.ffprobe == "" {
		o.ffprobe = "ffprobe"
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	o.logger = o.logger.With(zap.String("component", "ffmpeg"))
	return o
}

type streamInfo struct {
	Width     int
	Height    int
	FrameRate float64
}

func (o *FFmpegOpener) Open(ctx context.Context, path string) (Decoder, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, models.NewError(models.KindResourceUnavailable, "video.Open", err)
	}

	info, err := o.probe(ctx, path)
	if err != nil {
		return nil, models.NewError(models.KindDecode, "video.Probe", err)
	}

	cmd := exec.CommandContext(ctx, o.ffmpeg,
		"-v", "error", "-nostdin",
		"-i", path,
		"-map", "0:v:0",
		"-f", "rawvideo", "-pix_fmt", "rgb24",
		"-",
	)
	stderr := &tailBuffer{limit: 4096}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, models.NewError(models.KindDecode, "video.Open", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, models.NewError(models.KindDecode, "video.Open", fmt.Errorf("start %s: %w", o.ffmpeg, err))
	}

	o.logger.Debug("decoding video",
		zap.String("path", path),
		zap.Int("width", info.Width),
		zap.Int("height", info.Height),
		zap.Float64("frame_rate", info.FrameRate),
	)

	return &ffmpegDecoder{
		raw: newRawFrameReader(stdout, info.Width, info.Height, func() error {
			if err := cmd.Wait(); err != nil {
				if msg := strings.TrimSpace(stderr.String()); msg != "" {
					return fmt.Errorf("%w: %s", err, msg)
				}
				return err
			}
			return nil
		}),
		frameRate: info.FrameRate,
		cmd:       cmd,
	}, nil
}

type probeOutput struct {
	Streams []struct {
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
		RFrameRate   string `json:"r_frame_rate"`
	} `json:"streams"`
}

func (o *FFmpegOpener) probe(ctx context.Context, path string) (streamInfo, error) {
	cmd := exec.CommandContext(ctx, o.ffprobe,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,avg_frame_rate,r_frame_rate",
		"-of", "json",
		path,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return streamInfo{}, fmt.Errorf("ffprobe: %w: %s", err, msg)
		}
		return streamInfo{}, fmt.Errorf("ffprobe: %w", err)
	}
	return parseProbe(out)
}

func parseProbe(data []byte) (streamInfo, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return streamInfo{}, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(out.Streams) == 0 {
		return streamInfo{}, errors.New("no video stream")
	}
	s := out.Streams[0]
	if s.Width <= 0 || s.Height <= 0 {
		return streamInfo{}, fmt.Errorf("invalid frame size %dx%d", s.Width, s.Height)
	}
	fps := parseRational(s.AvgFrameRate)
	if fps <= 0 {
		fps = parseRational(s.RFrameRate)
	}
	return streamInfo{Width: s.Width, Height: s.Height, FrameRate: fps}, nil
}

// parseRational reads ffprobe rates such as "30000/1001" or "25". Anything
// unparseable or with a zero denominator yields 0.
func parseRational(s string) float64 {
	num, den, found := strings.Cut(strings.TrimSpace(s), "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

type ffmpegDecoder struct {
	raw       *rawFrameReader
	frameRate float64
	cmd       *exec.Cmd
	closeOnce sync.Once
}

func (d *ffmpegDecoder) FrameRate() float64          { return d.frameRate }
func (d *ffmpegDecoder) Next() (models.Frame, error) { return d.raw.Next() }

func (d *ffmpegDecoder) Close() error {
	d.closeOnce.Do(func() {
		if !d.raw.done && d.cmd.Process != nil {
			_ = d.cmd.Process.Kill()
			_ = d.raw.finish()
		}
		d.raw.done = true
		if d.raw.err == nil {
			d.raw.err = errors.New("decoder closed")
		}
	})
	return nil
}

// rawFrameReader slices a packed rgb24 byte stream into frames. finish is
// called once at end of input and reports whether the producer failed.
type rawFrameReader struct {
	r      io.Reader
	width  int
	height int
	size   int
	index  int
	finish func() error
	done   bool
	err    error
}

func newRawFrameReader(r io.Reader, width, height int, finish func() error) *rawFrameReader {
	return &rawFrameReader{r: r, width: width, height: height, size: width * height * 3, finish: finish}
}

func (rf *rawFrameReader) Next() (models.Frame, error) {
	if rf.done {
		return models.Frame{}, rf.err
	}

	buf := make([]byte, rf.size)
	n, err := io.ReadFull(rf.r, buf)
	switch {
	case err == nil:
		f := models.Frame{Index: rf.index, Width: rf.width, Height: rf.height, Format: models.PixelFormatRGB24, Data: buf}
		rf.index++
		return f, nil
	case errors.Is(err, io.EOF):
		rf.stop(io.EOF)
	case errors.Is(err, io.ErrUnexpectedEOF):
		rf.stop(fmt.Errorf("truncated frame %d: got %d of %d bytes", rf.index, n, rf.size))
	default:
		rf.stop(err)
	}
	return models.Frame{}, rf.err
}

func (rf *rawFrameReader) stop(cause error) {
	rf.done = true
	var exitErr error
	if rf.finish != nil {
		exitErr = rf.finish()
	}
	if errors.Is(cause, io.EOF) && exitErr == nil {
		rf.err = io.EOF
		return
	}
	if errors.Is(cause, io.EOF) {
		cause = exitErr
	}
	rf.err = models.NewError(models.KindDecode, "video.Next", cause)
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.limit {
		t.buf = t.buf[len(t.buf)-t.limit:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
