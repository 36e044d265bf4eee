package source

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/explorable-research/explorable-backend/internal/explorables/arxiv"
	"github.com/explorable-research/explorable-backend/internal/explorables/domain"
	"github.com/explorable-research/explorable-backend/internal/logger"
)

const (
	// MaxStoredBytes applies when the PDF can be written to blob storage.
	MaxStoredBytes = 10 * 1024 * 1024
	// MaxInlineBytes applies when the PDF travels inline with the request.
	MaxInlineBytes = 33 * 1024 * 1024 / 10

	pdfContentType  = "application/pdf"
	defaultFilename = "document.pdf"
)

var pdfMagic = []byte("%PDF-")

// PaperFetcher downloads arXiv papers and their metadata.
type PaperFetcher interface {
	FetchPDF(ctx context.Context, id string) ([]byte, error)
	FetchMetadata(ctx context.Context, id string) (*arxiv.Metadata, error)
}

// BlobWriter stores PDF bytes and returns the object path.
type BlobWriter interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Ref is either an arXiv URL/id or raw PDF bytes.
type Ref struct {
	ArxivURL string
	PDF      []byte
	Filename string
}

type Options struct {
	UserID string
}

// PDFRef points at a stored PDF or carries its bytes inline. Exactly one field is set.
type PDFRef struct {
	StoragePath string
	Data        []byte
}

func (r PDFRef) Stored() bool { return r.StoragePath != "" }

type Resolved struct {
	PDF      PDFRef
	Filename string
	Title    string
	Abstract string
	ArxivID  string
}

// HasMetadata reports whether title/abstract came from arXiv.
func (r *Resolved) HasMetadata() bool { return r.ArxivID != "" }

type Resolver struct {
	papers PaperFetcher
	blobs  BlobWriter
}

// NewResolver creates a resolver. blobs may be nil when no storage is configured.
func NewResolver(papers PaperFetcher, blobs BlobWriter) *Resolver {
	return &Resolver{papers: papers, blobs: blobs}
}

// Check validates ref without any I/O: the arXiv id shape, or the PDF magic
// bytes and size of an upload.
func (r *Resolver) Check(ref Ref, opts Options) error {
	switch {
	case strings.TrimSpace(ref.ArxivURL) != "":
		_, err := parseArxiv(ref.ArxivURL)
		return err
	case len(ref.PDF) > 0:
		if _, err := fromUpload(ref); err != nil {
			return err
		}
		return CheckSize(len(ref.PDF), r.canStore(opts))
	}
	return domain.NewError(domain.CodeValidation, "either an arXiv URL or a PDF file is required")
}

// Resolve normalizes ref into a stored or inline PDF plus metadata.
func (r *Resolver) Resolve(ctx context.Context, ref Ref, opts Options) (*Resolved, error) {
	var (
		res *Resolved
		err error
	)
	switch {
	case strings.TrimSpace(ref.ArxivURL) != "":
		res, err = r.fromArxiv(ctx, ref.ArxivURL)
	case len(ref.PDF) > 0:
		res, err = fromUpload(ref)
	default:
		return nil, domain.NewError(domain.CodeValidation, "either an arXiv URL or a PDF file is required")
	}
	if err != nil {
		return nil, err
	}

	canStore := r.canStore(opts)
	if err := CheckSize(len(res.PDF.Data), canStore); err != nil {
		return nil, err
	}
	if !canStore {
		return res, nil
	}

	data := res.PDF.Data
	res.PDF, err = tryPrimaryThenFallback(
		func() (PDFRef, error) {
			key := fmt.Sprintf("%s/%s.pdf", opts.UserID, uuid.New().String())
			path, err := r.blobs.Put(ctx, key, data, pdfContentType)
			if err != nil {
				return PDFRef{}, err
			}
			return PDFRef{StoragePath: path}, nil
		},
		func(storeErr error) (PDFRef, error) {
			if len(data) > MaxInlineBytes {
				return PDFRef{}, domain.Wrap(domain.CodeStorageFailed, storeErr, "Failed to store PDF")
			}
			logger.New(ctx).Warnf("resolve_source", "storage failed, sending PDF inline: %v", storeErr)
			return PDFRef{Data: data}, nil
		},
	)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (r *Resolver) canStore(opts Options) bool {
	return r.blobs != nil && opts.UserID != ""
}

func parseArxiv(input string) (string, error) {
	id, ok := arxiv.ExtractID(input)
	if !ok {
		return "", domain.NewError(domain.CodeInvalidURL, "Invalid arXiv URL or ID: %s", strings.TrimSpace(input))
	}
	return id, nil
}

func (r *Resolver) fromArxiv(ctx context.Context, input string) (*Resolved, error) {
	id, err := parseArxiv(input)
	if err != nil {
		return nil, err
	}

	data, err := r.papers.FetchPDF(ctx, id)
	if err != nil {
		if domain.CodeOf(err) == domain.CodeNotFound {
			return nil, err
		}
		return nil, domain.Wrap(domain.CodeInternal, err, "Failed to fetch arXiv paper %s", id)
	}

	res := &Resolved{
		PDF:      PDFRef{Data: data},
		Filename: strings.ReplaceAll(id, "/", "_") + ".pdf",
		Title:    "arXiv:" + id,
		ArxivID:  id,
	}
	md, err := r.papers.FetchMetadata(ctx, id)
	if err != nil {
		logger.New(ctx).Warnf("resolve_source", "metadata unavailable for %s: %v", id, err)
		return res, nil
	}
	res.Title = md.Title
	res.Abstract = md.Abstract
	return res, nil
}

func fromUpload(ref Ref) (*Resolved, error) {
	if !bytes.HasPrefix(ref.PDF, pdfMagic) {
		return nil, domain.NewError(domain.CodeInvalidFormat, "Uploaded file is not a PDF")
	}
	filename := strings.TrimSpace(ref.Filename)
	if filename == "" {
		filename = defaultFilename
	}
	return &Resolved{
		PDF:      PDFRef{Data: ref.PDF},
		Filename: filename,
		Title:    strings.TrimSuffix(filename, ".pdf"),
	}, nil
}

// CheckSize rejects payloads above the ceiling that applies to the caller.
func CheckSize(size int, canStore bool) error {
	limit := MaxInlineBytes
	if canStore {
		limit = MaxStoredBytes
	}
	if size <= limit {
		return nil
	}
	err := domain.NewError(domain.CodeTooLarge, "PDF is too large (%.1f MB). Maximum size is %.1f MB.", toMB(size), toMB(limit))
	err.Details = map[string]int{"size": size, "max_size": limit}
	return err
}

func toMB(n int) float64 {
	return float64(n) / (1024 * 1024)
}

// tryPrimaryThenFallback runs fallback only when primary fails. The fallback
// result, including its error, is authoritative.
func tryPrimaryThenFallback[T any](primary func() (T, error), fallback func(error) (T, error)) (T, error) {
	v, err := primary()
	if err == nil {
		return v, nil
	}
	return fallback(err)
}
