package services

import (
	"bytes"
	"context"
	"fmt"
	"image/png"

	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/pagelift/pagelift/internal/models"
)

const baseDPI = 72

// FitzRasterizer renders PDF pages to PNG previews through MuPDF, after
// validating the PDF structure with pdfcpu.
type FitzRasterizer struct{}

// NewFitzRasterizer returns the production rasterizer.
func NewFitzRasterizer() *FitzRasterizer {
	return &FitzRasterizer{}
}

// RenderPages renders every page of the PDF at the given scale factor, in
// source-page order. The returned slice is complete or the call fails;
// callers never see a partial set.
func (r *FitzRasterizer) RenderPages(ctx context.Context, pdf []byte, scale float64) ([]models.PageImage, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if err := api.Validate(bytes.NewReader(pdf), conf); err != nil {
		return nil, fmt.Errorf("PDF failed validation: %w", err)
	}
	expectedPages, err := api.PageCount(bytes.NewReader(pdf), conf)
	if err != nil {
		return nil, fmt.Errorf("failed to get page count: %w", err)
	}
	if expectedPages == 0 {
		return nil, fmt.Errorf("PDF has no pages")
	}

	doc, err := fitz.NewFromMemory(pdf)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF for rendering: %w", err)
	}
	defer doc.Close()

	if got := doc.NumPage(); got != expectedPages {
		return nil, fmt.Errorf("renderer sees %d pages, PDF declares %d", got, expectedPages)
	}

	pages := make([]models.PageImage, 0, expectedPages)
	for i := 0; i < expectedPages; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		img, err := doc.ImageDPI(i, baseDPI*scale)
		if err != nil {
			return nil, fmt.Errorf("failed to render page %d: %w", i+1, err)
		}

		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("failed to encode page %d as PNG: %w", i+1, err)
		}

		pages = append(pages, models.PageImage{
			Index:       i,
			Data:        buf.Bytes(),
			ContentType: "image/png",
			Scale:       scale,
		})
	}
	return pages, nil
}
