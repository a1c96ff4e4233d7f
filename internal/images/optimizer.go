// Package images produces resized variants of article images and stores them
// in object storage.
package images

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"golang.org/x/image/draw"

	"github.com/bilgisen/synchronicity/internal/logger"
	"github.com/bilgisen/synchronicity/internal/metrics"
	"github.com/bilgisen/synchronicity/internal/models"
)

const (
	maxSourceBytes = 20 << 20
	jpegQuality    = 85
)

// Tier is one output size. Variants are cover-fit and centre-cropped.
type Tier struct {
	Name   string
	Width  int
	Height int
}

// Tiers are produced for every optimized image.
var Tiers = []Tier{
	{Name: models.TierThumbnail, Width: 400, Height: 300},
	{Name: models.TierCard, Width: 800, Height: 600},
	{Name: models.TierHero, Width: 1200, Height: 800},
}

// ErrDisabled is returned when no uploader is configured.
var ErrDisabled = errors.New("image optimization disabled")

// Uploader stores an encoded variant and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Optimizer downloads source images and uploads resized variants.
type Optimizer struct {
	client   *resty.Client
	uploader Uploader
	log      zerolog.Logger
}

// NewOptimizer creates an optimizer. A nil uploader disables it.
func NewOptimizer(uploader Uploader, timeout time.Duration) *Optimizer {
	return &Optimizer{
		client: resty.New().
			SetTimeout(timeout).
			SetHeader("Accept", "image/*"),
		uploader: uploader,
		log:      logger.Component("images"),
	}
}

// Enabled reports whether an uploader is configured.
func (o *Optimizer) Enabled() bool {
	return o != nil && o.uploader != nil
}

// Degraded is the mapping used when optimization fails: the original image as the card tier.
func Degraded(imageURL string) map[string]string {
	return map[string]string{models.TierCard: imageURL}
}

// Optimize downloads imageURL once and uploads every tier. It always returns a
// usable mapping; when err is non-nil the mapping is Degraded(imageURL).
func (o *Optimizer) Optimize(ctx context.Context, imageURL, articleID string) (map[string]string, error) {
	if !o.Enabled() {
		return Degraded(imageURL), ErrDisabled
	}

	variants, err := o.optimize(ctx, imageURL, articleID)
	if err != nil {
		metrics.RecordImage("degraded")
		o.log.Warn().Err(err).Str("article_id", articleID).Str("url", imageURL).Msg("Image optimization failed")
		return Degraded(imageURL), err
	}
	metrics.RecordImage("success")
	return variants, nil
}

func (o *Optimizer) optimize(ctx context.Context, imageURL, articleID string) (map[string]string, error) {
	data, err := o.download(ctx, imageURL)
	if err != nil {
		return nil, err
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	variants := make(map[string]string, len(Tiers))
	for _, tier := range Tiers {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, CoverFit(src, tier.Width, tier.Height), &jpeg.Options{Quality: jpegQuality}); err != nil {
			return nil, fmt.Errorf("encode %s: %w", tier.Name, err)
		}

		key := fmt.Sprintf("articles/%s_%s.jpg", articleID, tier.Name)
		url, err := o.uploader.Upload(ctx, key, buf.Bytes(), "image/jpeg")
		if err != nil {
			return nil, fmt.Errorf("upload %s: %w", tier.Name, err)
		}
		variants[tier.Name] = url
	}
	return variants, nil
}

func (o *Optimizer) download(ctx context.Context, imageURL string) ([]byte, error) {
	resp, err := o.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(imageURL)
	if err != nil {
		return nil, fmt.Errorf("download image: %w", err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("download image: unexpected status %d", resp.StatusCode())
	}

	data, err := io.ReadAll(io.LimitReader(body, maxSourceBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if len(data) > maxSourceBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", maxSourceBytes)
	}
	if len(data) == 0 {
		return nil, errors.New("empty image data")
	}
	return data, nil
}

// CoverFit scales src to cover a width×height box and crops the overflow
// evenly from both sides.
func CoverFit(src image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))

	b := src.Bounds()
	sw, sh := b.Dx(), b.Dy()
	if sw == 0 || sh == 0 {
		return dst
	}

	crop := b
	if sw*height > sh*width {
		// source is wider than the target
		cw := sh * width / height
		x0 := b.Min.X + (sw-cw)/2
		crop = image.Rect(x0, b.Min.Y, x0+cw, b.Max.Y)
	} else if sw*height < sh*width {
		ch := sw * height / width
		y0 := b.Min.Y + (sh-ch)/2
		crop = image.Rect(b.Min.X, y0, b.Max.X, y0+ch)
	}

	draw.CatmullRom.Scale(dst, dst.Bounds(), src, crop, draw.Src, nil)
	return dst
}
