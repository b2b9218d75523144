package stream

import (
	"context"
	"os/exec"
	"path/filepath"
)

// Transcoder turns a source media file into a segmented streaming
// representation inside outputDir. Build blocks until the conversion is done
// or ctx expires; the cache runs it on its own goroutine so no request
// thread ever waits on a full conversion. Swappable so tests can use a fake
// that writes a canned manifest instantly.
type Transcoder interface {
	Build(ctx context.Context, sourcePath, outputDir string) error
}

// FFmpegTranscoder shells out to ffmpeg to produce an HLS rendition. Segments
// appear incrementally, so the manifest becomes readable while the conversion
// is still appending further segments.
type FFmpegTranscoder struct {
	BinPath string
}

func NewFFmpegTranscoder(binPath string) *FFmpegTranscoder {
	if binPath == "" {
		binPath = "ffmpeg"
	}
	return &FFmpegTranscoder{BinPath: binPath}
}

func (t *FFmpegTranscoder) Build(ctx context.Context, sourcePath, outputDir string) error {
	cmd := exec.CommandContext(ctx, t.BinPath,
		"-i", sourcePath,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-c:a", "aac",
		"-f", "hls",
		"-hls_time", "4",
		"-hls_playlist_type", "event",
		"-hls_segment_filename", filepath.Join(outputDir, "seg%06d.ts"),
		filepath.Join(outputDir, ManifestName),
	)
	return cmd.Run()
}
