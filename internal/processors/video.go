package processors

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"fileforge/internal/catalog"
	"fileforge/internal/config"
	"fileforge/internal/services"
	"fileforge/internal/worker"
)

// VideoProcessor handles the video family by shelling out to ffmpeg. Input
// bytes are staged in a scratch directory because ffmpeg needs seekable
// files for most containers.
type VideoProcessor struct {
	cfg config.Video
}

// NewVideoProcessor builds a video processor with the configured defaults.
func NewVideoProcessor(cfg config.Video) *VideoProcessor {
	return &VideoProcessor{cfg: cfg}
}

func (p *VideoProcessor) Kinds() []catalog.ActionKind {
	return []catalog.ActionKind{
		catalog.ActionVideoThumbnail,
		catalog.ActionVideoPreview,
		catalog.ActionVideoConvert,
	}
}

func (p *VideoProcessor) Process(ctx context.Context, req worker.Request) (*worker.Result, error) {
	if _, err := exec.LookPath(p.cfg.FFmpegBinary); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "video", "ffmpeg",
			p.cfg.FFmpegBinary+" not found in PATH", err)
	}

	scratch, err := os.MkdirTemp("", "fileforge-video-")
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "video", "scratch", "", err)
	}
	defer func() { _ = os.RemoveAll(scratch) }()

	inputPath := filepath.Join(scratch, "input"+filepath.Ext(req.Input.OriginalName))
	if err := stageInput(inputPath, req.Body); err != nil {
		return nil, services.Wrap(services.ErrTransient, "video", "stage input", "", err)
	}

	switch req.Job.Kind {
	case catalog.ActionVideoThumbnail:
		return p.thumbnail(ctx, scratch, inputPath, req)
	case catalog.ActionVideoPreview:
		return p.preview(ctx, scratch, inputPath, req)
	case catalog.ActionVideoConvert:
		return p.convert(ctx, scratch, inputPath, req)
	default:
		return nil, services.Wrap(services.ErrValidation, "video", "dispatch",
			"unsupported kind "+string(req.Job.Kind), nil)
	}
}

func (p *VideoProcessor) thumbnail(ctx context.Context, scratch, inputPath string, req worker.Request) (*worker.Result, error) {
	width := paramInt(req.Params, "width", 0)
	height := paramInt(req.Params, "height", 0)
	filter := "thumbnail"
	if width > 0 && height > 0 {
		filter = fmt.Sprintf("thumbnail,scale=%d:%d:force_original_aspect_ratio=decrease", width, height)
	}
	outputPath := filepath.Join(scratch, "thumb.jpg")
	args := []string{
		"-i", inputPath,
		"-vf", filter,
		"-frames:v", "1",
		"-pix_fmt", "yuvj420p",
		"-q:v", "2",
		"-y",
		outputPath,
	}
	if err := p.runFFmpeg(ctx, args); err != nil {
		return nil, err
	}
	return resultFromFile(outputPath, derivedName(req.Input.OriginalName, "_thumb", "jpg"), "image/jpeg")
}

func (p *VideoProcessor) preview(ctx context.Context, scratch, inputPath string, req worker.Request) (*worker.Result, error) {
	seconds := paramInt(req.Params, "seconds", p.cfg.PreviewSeconds)
	if seconds <= 0 {
		return nil, services.Wrap(services.ErrValidation, "video", "preview",
			"seconds must be positive", nil)
	}
	outputPath := filepath.Join(scratch, "preview.mp4")
	args := []string{
		"-i", inputPath,
		"-t", strconv.Itoa(seconds),
		"-an",
		"-c:v", "libx264",
		"-preset", "fast",
		"-movflags", "+faststart",
		"-y",
		outputPath,
	}
	if err := p.runFFmpeg(ctx, args); err != nil {
		return nil, err
	}
	return resultFromFile(outputPath, derivedName(req.Input.OriginalName, "_preview", "mp4"), "video/mp4")
}

func (p *VideoProcessor) convert(ctx context.Context, scratch, inputPath string, req worker.Request) (*worker.Result, error) {
	format := paramString(req.Params, "format", p.cfg.ConvertFormat)
	outputPath := filepath.Join(scratch, "converted."+format)
	args := []string{
		"-i", inputPath,
		"-movflags", "+faststart",
		"-y",
		outputPath,
	}
	if err := p.runFFmpeg(ctx, args); err != nil {
		return nil, err
	}
	return resultFromFile(outputPath, derivedName(req.Input.OriginalName, "", format), videoContentType(format))
}

func (p *VideoProcessor) runFFmpeg(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, p.cfg.FFmpegBinary, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return services.Wrap(services.ErrTimeout, "video", "ffmpeg", "", ctx.Err())
		}
		return services.Wrap(services.ErrExternalTool, "video", "ffmpeg",
			tailOf(string(output)), err)
	}
	return nil
}

func stageInput(path string, body io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	_, copyErr := io.Copy(f, body)
	closeErr := f.Close()
	if copyErr != nil {
		return copyErr
	}
	return closeErr
}

func resultFromFile(path, name, contentType string) (*worker.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "video", "collect output",
			"ffmpeg produced no readable output", err)
	}
	return &worker.Result{Output: data, OutputName: name, ContentType: contentType}, nil
}

func videoContentType(format string) string {
	switch format {
	case "mp4":
		return "video/mp4"
	case "webm":
		return "video/webm"
	case "mkv":
		return "video/x-matroska"
	case "mov":
		return "video/quicktime"
	default:
		return "application/octet-stream"
	}
}

// tailOf keeps the last few hundred bytes of tool output for diagnostics.
func tailOf(s string) string {
	const max = 400
	if len(s) <= max {
		return s
	}
	return "..." + s[len(s)-max:]
}
