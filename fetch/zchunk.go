package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/binpack/binpack/errs"
)

// Chunk describes one fixed-offset, fixed-size, checksummed range of a
// remote artifact, the Go equivalent of one entry in a zck chunk
// header. The real zchunk format is a binary header parsed by libzck;
// that parser isn't part of this module's dependency surface, so
// RangeTarget takes an already-parsed manifest instead of re-deriving
// one from the wire.
type Chunk struct {
	Offset int64
	Size   int64
	SHA256 string
}

// RangeTarget describes a range-fetchable artifact: a URL, a chunk
// manifest, a destination, and an optional local copy of a prior
// version of the same artifact that FetchRanges can reuse chunks from
// byte-for-byte instead of downloading them again.
type RangeTarget struct {
	URL         string
	Dest        string
	Chunks      []Chunk
	TotalSize   int64
	SourceCopy  string // path to a previous version's bytes, or ""
}

// rangeState is the explicit state this fetch walks through, replacing
// the teacher corpus's macro-emulated coroutine state with named
// states and ordinary Go control flow.
type rangeState int

const (
	rangeInitHeader rangeState = iota
	rangeFetchRanges
	rangeFinalize
	rangeDone
)

// RangeFetcher performs a chunked, partial-update download: chunks
// whose bytes already exist (verified by checksum) in a local source
// copy are reused; only the remaining chunks are fetched over HTTP
// Range requests. This is the "with range-download" Fetcher variant;
// Fetcher.Perform is the "without" variant — both are kept because the
// zchunk-capable path depends on the origin publishing a chunk
// manifest, which not every channel mirror does.
type RangeFetcher struct {
	client *http.Client
}

func NewRangeFetcher(client *http.Client) *RangeFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &RangeFetcher{client: client}
}

// Perform walks InitHeader -> FetchRanges -> Finalize -> Done,
// reassembling t.Dest from a mix of locally-reused and freshly
// downloaded chunks.
func (r *RangeFetcher) Perform(ctx context.Context, t RangeTarget) (Result, error) {
	state := rangeInitHeader
	var out *os.File
	var src *os.File
	defer func() {
		if out != nil {
			out.Close()
		}
		if src != nil {
			src.Close()
		}
	}()

	for state != rangeDone {
		switch state {
		case rangeInitHeader:
			if len(t.Chunks) == 0 {
				return Result{}, fmt.Errorf("fetch: RangeTarget has no chunk manifest for %s", t.URL)
			}
			f, err := os.CreateTemp("", "zchunk-*.tmp")
			if err != nil {
				return Result{}, err
			}
			out = f
			if t.SourceCopy != "" {
				if s, err := os.Open(t.SourceCopy); err == nil {
					src = s
				}
			}
			state = rangeFetchRanges

		case rangeFetchRanges:
			if err := r.fetchRanges(ctx, t, out, src); err != nil {
				return Result{}, err
			}
			state = rangeFinalize

		case rangeFinalize:
			if err := r.finalize(t, out); err != nil {
				return Result{}, err
			}
			out = nil
			state = rangeDone
		}
	}
	return Result{Status: StatusFetched, Size: t.TotalSize}, nil
}

// fetchRanges fills every chunk of out: reused verbatim from src when
// its bytes already match the expected checksum, downloaded via an
// HTTP Range request otherwise.
func (r *RangeFetcher) fetchRanges(ctx context.Context, t RangeTarget, out, src *os.File) error {
	for _, c := range t.Chunks {
		if src != nil && r.reuseFromSource(src, out, c) {
			continue
		}
		if err := r.downloadChunk(ctx, t.URL, out, c); err != nil {
			return err
		}
	}
	return nil
}

func (r *RangeFetcher) reuseFromSource(src, out *os.File, c Chunk) bool {
	buf := make([]byte, c.Size)
	if _, err := src.ReadAt(buf, c.Offset); err != nil {
		return false
	}
	sum := sha256.Sum256(buf)
	if hex.EncodeToString(sum[:]) != c.SHA256 {
		return false
	}
	_, err := out.WriteAt(buf, c.Offset)
	return err == nil
}

func (r *RangeFetcher) downloadChunk(ctx context.Context, url string, out *os.File, c Chunk) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", c.Offset, c.Offset+c.Size-1))

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusPartialContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch: range request for %s returned %d", url, resp.StatusCode)
	}

	h := sha256.New()
	tee := io.TeeReader(resp.Body, h)
	buf := make([]byte, c.Size)
	if _, err := io.ReadFull(tee, buf); err != nil {
		return err
	}
	if got := hex.EncodeToString(h.Sum(nil)); got != c.SHA256 {
		return errs.New(errs.ChecksumMismatch, url, fmt.Errorf("chunk at offset %d: expected %s got %s", c.Offset, c.SHA256, got))
	}
	_, err = out.WriteAt(buf, c.Offset)
	return err
}

// finalize verifies the assembled file's total size and atomically
// renames it into place.
func (r *RangeFetcher) finalize(t RangeTarget, out *os.File) error {
	info, err := out.Stat()
	if err != nil {
		return err
	}
	if t.TotalSize > 0 && info.Size() != t.TotalSize {
		return fmt.Errorf("fetch: assembled size %d does not match expected %d", info.Size(), t.TotalSize)
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Rename(out.Name(), t.Dest)
}
