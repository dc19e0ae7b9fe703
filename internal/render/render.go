// Package render turns a PDF into one PNG image per page.
package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"log/slog"

	"github.com/Lllllllleong/formextractionflow/internal/models"
	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"golang.org/x/sync/errgroup"
)

const (
	MediaTypePNG = "image/png"

	defaultDPI         = 72
	defaultConcurrency = 4
)

// Config controls rasterization.
type Config struct {
	DPI float64
	// Concurrency bounds the number of pages PNG-encoded at once.
	Concurrency int
}

// Renderer validates a PDF with pdfcpu and rasterizes it with MuPDF.
type Renderer struct {
	config Config
}

func New(cfg Config) *Renderer {
	if cfg.DPI <= 0 {
		cfg.DPI = defaultDPI
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	return &Renderer{config: cfg}
}

// Render returns one PNG per page, ordered by 1-based page number.
// Any failure is reported as a RenderError.
func (r *Renderer) Render(ctx context.Context, pdf []byte) ([]models.PageImage, error) {
	if len(pdf) == 0 {
		return nil, models.RenderError("empty document", nil)
	}

	pageCount, err := validate(pdf)
	if err != nil {
		return nil, models.RenderError("invalid PDF", err)
	}

	doc, err := fitz.NewFromMemory(pdf)
	if err != nil {
		return nil, models.RenderError("failed to open PDF", err)
	}
	defer doc.Close()

	if n := doc.NumPage(); n != pageCount {
		slog.Warn("Page count mismatch between validator and rasterizer.", "pdfcpu", pageCount, "mupdf", n)
		pageCount = n
	}
	if pageCount == 0 {
		return nil, models.RenderError("document has no pages", nil)
	}

	// MuPDF documents are not safe for concurrent use, so pages are
	// rasterized sequentially and only the encoding fans out.
	pages := make([]image.Image, pageCount)
	for i := 0; i < pageCount; i++ {
		if err := ctx.Err(); err != nil {
			return nil, models.RenderError("rendering cancelled", err)
		}
		img, err := doc.ImageDPI(i, r.config.DPI)
		if err != nil {
			return nil, models.RenderError(fmt.Sprintf("failed to rasterize page %d", i+1), err)
		}
		pages[i] = img
	}

	images, err := EncodePages(ctx, pages, r.config.Concurrency)
	if err != nil {
		return nil, models.RenderError("failed to encode pages", err)
	}
	slog.Debug("PDF rendered.", "pageCount", len(images), "dpi", r.config.DPI)
	return images, nil
}

func validate(pdf []byte) (int, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	if err := api.Validate(bytes.NewReader(pdf), conf); err != nil {
		return 0, err
	}
	return api.PageCount(bytes.NewReader(pdf), conf)
}

// EncodePages PNG-encodes pages concurrently. The result keeps input order and
// numbers pages from 1.
func EncodePages(ctx context.Context, pages []image.Image, concurrency int) ([]models.PageImage, error) {
	out := make([]models.PageImage, len(pages))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(max(concurrency, 1))

	for i, img := range pages {
		eg.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			var buf bytes.Buffer
			if err := png.Encode(&buf, img); err != nil {
				return fmt.Errorf("page %d: %w", i+1, err)
			}
			out[i] = models.PageImage{PageNumber: i + 1, MediaType: MediaTypePNG, Data: buf.Bytes()}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
