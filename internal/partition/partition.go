// Package partition splits a source document into an ordered sequence of
// bounded page-range chunks, materialized as standalone PDFs for submission
// to the recognition service.
package partition

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"go.uber.org/zap"

	"github.com/pagelift/pagelift/internal/extract"
)

// SingleChunkID is the reserved chunk id used when the whole document fits
// in one chunk.
const SingleChunkID = "original"

// Config holds partitioner settings.
type Config struct {
	// MaxPagesPerChunk bounds every chunk; must be in [1,10].
	MaxPagesPerChunk int
	// ChunkDir is where chunk PDFs are materialized for the run.
	ChunkDir string
}

// Partitioner splits PDFs into page-range chunks using pdfcpu.
type Partitioner struct {
	maxPages int
	chunkDir string
	logger   *zap.Logger
}

// New creates a Partitioner and prepares its chunk directory.
func New(cfg Config, logger *zap.Logger) (*Partitioner, error) {
	if cfg.MaxPagesPerChunk < 1 || cfg.MaxPagesPerChunk > 10 {
		return nil, &extract.ConfigurationError{
			Field:  "partition.max_pages_per_chunk",
			Reason: fmt.Sprintf("must be between 1 and 10, got %d", cfg.MaxPagesPerChunk),
		}
	}
	if cfg.ChunkDir == "" {
		return nil, &extract.ConfigurationError{Field: "partition.chunk_dir", Reason: "directory is required"}
	}
	if err := os.MkdirAll(cfg.ChunkDir, 0o750); err != nil {
		return nil, fmt.Errorf("create chunk dir: %w", err)
	}
	return &Partitioner{
		maxPages: cfg.MaxPagesPerChunk,
		chunkDir: cfg.ChunkDir,
		logger:   logger,
	}, nil
}

// Inspect opens the source document and returns its handle with the total
// page count. An unreadable document or one with zero pages is a partition
// failure, which aborts the run.
func (p *Partitioner) Inspect(path string) (extract.Document, error) {
	pages, err := api.PageCountFile(path)
	if err != nil {
		return extract.Document{}, &extract.PartitionError{Document: path, Err: fmt.Errorf("read page count: %w", err)}
	}
	if pages < 1 {
		return extract.Document{}, &extract.PartitionError{Document: path, Err: errors.New("document has no pages")}
	}
	return extract.Document{Path: path, TotalPages: pages}, nil
}

// Plan computes the chunk page ranges for a document: strides of maxPages
// with a possibly shorter final chunk. Every page lands in exactly one
// range. Exposed separately so the arithmetic is testable without a PDF.
func Plan(totalPages, maxPages int) [][2]int {
	if totalPages < 1 || maxPages < 1 {
		return nil
	}
	count := (totalPages + maxPages - 1) / maxPages
	ranges := make([][2]int, 0, count)
	for start := 1; start <= totalPages; start += maxPages {
		end := start + maxPages - 1
		if end > totalPages {
			end = totalPages
		}
		ranges = append(ranges, [2]int{start, end})
	}
	return ranges
}

// Split partitions doc into sequential chunks and materializes each one
// under the chunk directory. A document that fits in a single chunk keeps
// the whole source as one chunk with the reserved id "original".
func (p *Partitioner) Split(ctx context.Context, doc extract.Document) ([]extract.Chunk, error) {
	if doc.TotalPages < 1 {
		return nil, &extract.PartitionError{Document: doc.Path, Err: errors.New("document has no pages")}
	}
	width := len(strconv.Itoa(doc.TotalPages))

	if doc.TotalPages <= p.maxPages {
		chunk := extract.Chunk{
			ID:            SingleChunkID,
			StartPage:     1,
			EndPage:       doc.TotalPages,
			SequenceIndex: 0,
			PageLabel:     pageLabel(1, doc.TotalPages, width),
		}
		dst := filepath.Join(p.chunkDir, chunk.ID+".pdf")
		if err := copyFile(doc.Path, dst); err != nil {
			return nil, &extract.PartitionError{Document: doc.Path, Err: fmt.Errorf("materialize single chunk: %w", err)}
		}
		chunk.Path = dst
		p.logger.Info("document fits in one chunk",
			zap.String("document", doc.Path),
			zap.Int("pages", doc.TotalPages),
		)
		return []extract.Chunk{chunk}, nil
	}

	base := baseName(doc.Path)
	ranges := Plan(doc.TotalPages, p.maxPages)
	chunks := make([]extract.Chunk, 0, len(ranges))
	for i, r := range ranges {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("partition interrupted: %w", err)
		}
		suffix, err := randomSuffix()
		if err != nil {
			return nil, &extract.PartitionError{Document: doc.Path, Err: fmt.Errorf("chunk id suffix: %w", err)}
		}
		id := base + "-" + suffix
		dst := filepath.Join(p.chunkDir, id+".pdf")
		selection := []string{fmt.Sprintf("%d-%d", r[0], r[1])}
		if err := api.TrimFile(doc.Path, dst, selection, nil); err != nil {
			return nil, &extract.PartitionError{Document: doc.Path, Err: fmt.Errorf("extract pages %d-%d: %w", r[0], r[1], err)}
		}
		chunks = append(chunks, extract.Chunk{
			ID:            id,
			StartPage:     r[0],
			EndPage:       r[1],
			SequenceIndex: i,
			PageLabel:     pageLabel(r[0], r[1], width),
			Path:          dst,
		})
	}
	p.logger.Info("document partitioned",
		zap.String("document", doc.Path),
		zap.Int("pages", doc.TotalPages),
		zap.Int("chunks", len(chunks)),
		zap.Int("max_pages_per_chunk", p.maxPages),
	)
	return chunks, nil
}

// Cleanup removes every materialized chunk. Called after aggregation and on
// fatal abort.
func (p *Partitioner) Cleanup() error {
	if err := os.RemoveAll(p.chunkDir); err != nil {
		return fmt.Errorf("remove chunk dir: %w", err)
	}
	return nil
}

// pageLabel renders the zero-padded human-readable range, e.g. p06-10 for a
// two-digit document. Reporting only, never identity.
func pageLabel(start, end, width int) string {
	return fmt.Sprintf("p%0*d-%0*d", width, start, width, end)
}

// randomSuffix returns 48 bits of randomness as 12 hex characters, enough
// to make collisions within one run negligible.
func randomSuffix() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// baseName derives the chunk id prefix from the source file name, keeping
// only filename-safe characters.
func baseName(path string) string {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	out := b.String()
	if out == "" {
		return "document"
	}
	return out
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		_ = in.Close()
	}()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
