// Package processors implements the action processors behind the worker
// pools: image manipulation, video transcoding, security scanning and
// encryption, and AI tagging.
package processors

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"

	"fileforge/internal/catalog"
	"fileforge/internal/config"
	"fileforge/internal/services"
	"fileforge/internal/worker"
)

// ImageProcessor handles the image family: thumbnail, convert, compress.
type ImageProcessor struct {
	cfg config.Image
}

// NewImageProcessor builds an image processor with the configured defaults.
func NewImageProcessor(cfg config.Image) *ImageProcessor {
	return &ImageProcessor{cfg: cfg}
}

func (p *ImageProcessor) Kinds() []catalog.ActionKind {
	return []catalog.ActionKind{
		catalog.ActionThumbnail,
		catalog.ActionImageConvert,
		catalog.ActionImageCompress,
	}
}

func (p *ImageProcessor) Process(ctx context.Context, req worker.Request) (*worker.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, services.Wrap(services.ErrTimeout, "image", string(req.Job.Kind), "", err)
	}

	src, err := imaging.Decode(req.Body, imaging.AutoOrientation(true))
	if err != nil {
		return nil, services.Wrap(services.ErrContent, "image", "decode",
			"input is not a decodable image", err)
	}

	switch req.Job.Kind {
	case catalog.ActionThumbnail:
		return p.thumbnail(src, req)
	case catalog.ActionImageConvert:
		return p.convert(src, req)
	case catalog.ActionImageCompress:
		return p.compress(src, req)
	default:
		return nil, services.Wrap(services.ErrValidation, "image", "dispatch",
			"unsupported kind "+string(req.Job.Kind), nil)
	}
}

func (p *ImageProcessor) thumbnail(src image.Image, req worker.Request) (*worker.Result, error) {
	width := paramInt(req.Params, "width", p.cfg.ThumbWidth)
	height := paramInt(req.Params, "height", p.cfg.ThumbHeight)
	if width <= 0 || height <= 0 {
		return nil, services.Wrap(services.ErrValidation, "image", "thumbnail",
			"width and height must be positive", nil)
	}

	thumb := imaging.Fit(src, width, height, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.PNG); err != nil {
		return nil, services.Wrap(services.ErrContent, "image", "thumbnail", "encode", err)
	}
	return &worker.Result{
		Output:      buf.Bytes(),
		OutputName:  derivedName(req.Input.OriginalName, "_thumb", "png"),
		ContentType: "image/png",
	}, nil
}

func (p *ImageProcessor) convert(src image.Image, req worker.Request) (*worker.Result, error) {
	formatName := strings.ToLower(paramString(req.Params, "format", p.cfg.ConvertFormat))
	format, err := imaging.FormatFromExtension(formatName)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "image", "convert",
			"unsupported target format "+formatName, err)
	}

	quality := paramInt(req.Params, "quality", p.cfg.ConvertQuality)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, src, format, imaging.JPEGQuality(quality)); err != nil {
		return nil, services.Wrap(services.ErrContent, "image", "convert", "encode", err)
	}
	return &worker.Result{
		Output:      buf.Bytes(),
		OutputName:  derivedName(req.Input.OriginalName, "", formatName),
		ContentType: imageContentType(formatName),
	}, nil
}

func (p *ImageProcessor) compress(src image.Image, req worker.Request) (*worker.Result, error) {
	quality := paramInt(req.Params, "quality", p.cfg.CompressQuality)
	if quality < 1 || quality > 100 {
		return nil, services.Wrap(services.ErrValidation, "image", "compress",
			fmt.Sprintf("quality %d out of range", quality), nil)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, src, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, services.Wrap(services.ErrContent, "image", "compress", "encode", err)
	}
	return &worker.Result{
		Output:      buf.Bytes(),
		OutputName:  derivedName(req.Input.OriginalName, "_compressed", "jpg"),
		ContentType: "image/jpeg",
	}, nil
}

func imageContentType(format string) string {
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "tif", "tiff":
		return "image/tiff"
	case "bmp":
		return "image/bmp"
	default:
		return "application/octet-stream"
	}
}

func derivedName(original, suffix, ext string) string {
	base := strings.TrimSuffix(filepath.Base(original), filepath.Ext(original))
	if base == "" {
		base = "output"
	}
	return base + suffix + "." + strings.TrimPrefix(ext, ".")
}

func paramString(params map[string]string, key, fallback string) string {
	if v, ok := params[key]; ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func paramInt(params map[string]string, key string, fallback int) int {
	if v, ok := params[key]; ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return fallback
}
