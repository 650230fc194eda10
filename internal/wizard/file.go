package wizard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/abema/go-mp4"
	"github.com/gabriel-vasile/mimetype"
)

// File is a candidate upload.
type File interface {
	Name() string
	Size() int64
	ContentType() string
	Open() (io.ReadCloser, error)
}

// Prober reads a media file's playing time.
type Prober interface {
	Duration(ctx context.Context, f File) (time.Duration, error)
}

// LocalFile is a File on disk whose content type is sniffed from its bytes.
type LocalFile struct {
	path     string
	size     int64
	mimeType string
}

// OpenLocalFile stats and sniffs path.
func OpenLocalFile(path string) (*LocalFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("detecting type of %s: %w", path, err)
	}
	return &LocalFile{path: path, size: info.Size(), mimeType: mt.String()}, nil
}

func (f *LocalFile) Name() string { return filepath.Base(f.path) }
func (f *LocalFile) Size() int64 { return f.size }
func (f *LocalFile) ContentType() string { return f.mimeType }
func (f *LocalFile) Path() string { return f.path }

func (f *LocalFile) Open() (io.ReadCloser, error) {
	return os.Open(f.path)
}

var errNotSeekable = errors.New("reading media metadata needs a seekable file")

// MP4Prober reads the duration from the movie header box.
type MP4Prober struct{}

func (MP4Prober) Duration(ctx context.Context, f File) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	rc, err := f.Open()
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	rs, ok := rc.(io.ReadSeeker)
	if !ok {
		return 0, errNotSeekable
	}

	info, err := mp4.Probe(rs)
	if err != nil {
		return 0, fmt.Errorf("reading duration of %s: %w", f.Name(), err)
	}
	if info.Timescale == 0 {
		return 0, fmt.Errorf("reading duration of %s: no movie header", f.Name())
	}

	d := scale(info.Duration, info.Timescale)
	if d == 0 {
		// Fragmented files leave mvhd empty.
		if d, err = fragmentDuration(rs, info); err != nil {
			return 0, fmt.Errorf("reading duration of %s: %w", f.Name(), err)
		}
	}
	if d <= 0 {
		return 0, fmt.Errorf("reading duration of %s: %w", f.Name(), errNoDuration)
	}
	return d, nil
}

var errNoDuration = errors.New("no duration in movie, fragment or track headers")

// fragmentDuration tries mvex/mehd, then the summed fragment runs of each
// track, then the longest track header.
func fragmentDuration(rs io.ReadSeeker, info *mp4.ProbeInfo) (time.Duration, error) {
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	boxes, err := mp4.ExtractBoxWithPayload(rs, nil, mp4.BoxPath{mp4.BoxTypeMoov(), mp4.BoxTypeMvex(), mp4.BoxTypeMehd()})
	if err != nil {
		return 0, err
	}
	for _, b := range boxes {
		if mehd, ok := b.Payload.(*mp4.Mehd); ok {
			if d := scale(mehd.GetFragmentDuration(), info.Timescale); d > 0 {
				return d, nil
			}
		}
	}

	timescales := make(map[uint32]uint32, len(info.Tracks))
	var longest time.Duration
	for _, t := range info.Tracks {
		timescales[t.TrackID] = t.Timescale
		if d := scale(t.Duration, t.Timescale); d > longest {
			longest = d
		}
	}
	sums := make(map[uint32]uint64)
	for _, seg := range info.Segments {
		sums[seg.TrackID] += uint64(seg.Duration)
	}
	for id, sum := range sums {
		if d := scale(sum, timescales[id]); d > longest {
			longest = d
		}
	}
	return longest, nil
}

func scale(units uint64, timescale uint32) time.Duration {
	if timescale == 0 {
		return 0
	}
	ts := uint64(timescale)
	whole := units / ts
	rem := units % ts
	return time.Duration(whole)*time.Second + time.Duration(rem*uint64(time.Second)/ts)
}
