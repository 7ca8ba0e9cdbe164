package fetch

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/binpack/binpack/cancel"
	"github.com/binpack/binpack/errs"
)

// Fetcher performs the single logical fetch operation: a
// conditional GET with retry/backoff and atomic replacement of the
// destination file. It issues no HEAD requests. Grounded on the teacher's npm/download.Downloader
// (streaming hash verification, atomic temp-file rename) generalized to
// conditional requests and a pluggable retry policy.
type Fetcher struct {
	log    *slog.Logger
	client *http.Client
	cancel *cancel.Flag

	MaxRetries  int
	RetryWait   time.Duration
	RetryBackoff float64
}

// New creates a Fetcher. client may be nil, in which case http.DefaultClient
// is used with a generous timeout suitable for large archives.
func New(log *slog.Logger, client *http.Client, cancelFlag *cancel.Flag) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Minute}
	}
	return &Fetcher{
		log:          log,
		client:       client,
		cancel:       cancelFlag,
		MaxRetries:   3,
		RetryWait:    1 * time.Second,
		RetryBackoff: 2.0,
	}
}

// Perform executes one Target to a terminal Result. It retries transient
// failures (connection reset, timeout, 5xx, 408, 429) up to MaxRetries
// times, multiplying the wait by RetryBackoff each time and honoring a
// server-supplied Retry-After header when present.
func (f *Fetcher) Perform(ctx context.Context, t Target) Result {
	wait := f.RetryWait
	var lastErr error
	for attempt := 0; attempt <= f.MaxRetries; attempt++ {
		if f.cancel != nil && f.cancel.Cancelled() {
			return Result{Target: t, Status: StatusCancelled}
		}
		res, retryAfter, transient := f.attempt(ctx, t)
		if !transient {
			return res
		}
		lastErr = res.Err
		if attempt == f.MaxRetries {
			break
		}
		delay := wait
		if retryAfter > 0 {
			delay = retryAfter
		}
		f.log.Warn("transient fetch failure, retrying", slog.String("url", t.URL), slog.Int("attempt", attempt+1), slog.Duration("wait", delay), slog.Any("error", res.Err))
		select {
		case <-ctx.Done():
			return Result{Target: t, Status: StatusCancelled, Err: ctx.Err()}
		case <-time.After(delay):
		}
		wait = time.Duration(float64(wait) * f.RetryBackoff)
	}
	return Result{Target: t, Status: StatusFailed, Err: errs.New(errs.NetworkTransient, t.URL, lastErr)}
}

// attempt performs one HTTP round trip and streams the body, returning
// whether the failure (if any) is transient and worth retrying.
func (f *Fetcher) attempt(ctx context.Context, t Target) (res Result, retryAfter time.Duration, transient bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.URL, nil)
	if err != nil {
		return Result{Target: t, Status: StatusFailed, Err: errs.New(errs.NetworkFatal, t.URL, err)}, 0, false
	}
	if t.PriorETag != "" {
		req.Header.Set("If-None-Match", t.PriorETag)
	}
	if t.PriorLastModified != "" {
		req.Header.Set("If-Modified-Since", t.PriorLastModified)
	}

	if t.Progress != nil {
		t.Progress.Start(t.URL, t.ExpectSize)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Result{Target: t, Status: StatusCancelled, Err: ctx.Err()}, 0, false
		}
		return Result{Target: t, Status: StatusFailed, Err: err}, 0, true
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		return Result{Target: t, Status: StatusNotModified, ETag: resp.Header.Get("ETag"), LastModified: resp.Header.Get("Last-Modified"), CacheControl: resp.Header.Get("Cache-Control")}, 0, false

	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		size, err := f.stream(ctx, t, resp)
		if err != nil {
			if t.Progress != nil {
				t.Progress.Fail(err)
			}
			var ck *errs.Error
			if errors.As(err, &ck) && ck.Kind == errs.ChecksumMismatch {
				return Result{Target: t, Status: StatusFailed, Err: err}, 0, false
			}
			return Result{Target: t, Status: StatusFailed, Err: err}, 0, true
		}
		if t.Progress != nil {
			t.Progress.Finish()
		}
		return Result{Target: t, Status: StatusFetched, ETag: resp.Header.Get("ETag"), LastModified: resp.Header.Get("Last-Modified"), CacheControl: resp.Header.Get("Cache-Control"), Size: size}, 0, false

	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode == http.StatusRequestTimeout, resp.StatusCode >= 500:
		ra := parseRetryAfter(resp.Header.Get("Retry-After"))
		return Result{Target: t, Status: StatusFailed, Err: fmt.Errorf("http %d", resp.StatusCode)}, ra, true

	default:
		return Result{Target: t, Status: StatusFailed, Err: errs.New(errs.NetworkFatal, t.URL, fmt.Errorf("http %d", resp.StatusCode))}, 0, false
	}
}

// stream copies the response body to a temp file alongside Dest, verifying
// size and checksums as it goes, then atomically renames into place.
func (f *Fetcher) stream(ctx context.Context, t Target, resp *http.Response) (size int64, err error) {
	dir := filepath.Dir(t.Dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}
	tmp, err := os.CreateTemp(dir, ".fetch-*.tmp")
	if err != nil {
		return 0, err
	}
	tmpPath := tmp.Name()
	defer func() {
		tmp.Close()
		if err != nil {
			os.Remove(tmpPath)
		}
	}()

	var sha256h, md5h hash.Hash
	writers := []io.Writer{tmp}
	if t.ExpectSHA256 != "" {
		sha256h = sha256.New()
		writers = append(writers, sha256h)
	}
	if t.ExpectMD5 != "" {
		md5h = md5.New()
		writers = append(writers, md5h)
	}
	mw := io.MultiWriter(writers...)

	buf := make([]byte, 256*1024)
	var total int64
	for {
		if f.cancel != nil && f.cancel.Cancelled() {
			return total, context.Canceled
		}
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := mw.Write(buf[:n]); werr != nil {
				return total, werr
			}
			total += int64(n)
			if t.Progress != nil {
				t.Progress.Update(total, t.ExpectSize)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return total, rerr
		}
	}

	if t.ExpectSize > 0 && total != t.ExpectSize {
		return total, errs.New(errs.ChecksumMismatch, t.URL, fmt.Errorf("size mismatch: expected %d got %d", t.ExpectSize, total))
	}
	if sha256h != nil {
		got := hex.EncodeToString(sha256h.Sum(nil))
		if got != t.ExpectSHA256 {
			return total, errs.New(errs.ChecksumMismatch, t.URL, fmt.Errorf("sha256 mismatch: expected %s got %s", t.ExpectSHA256, got))
		}
	}
	if md5h != nil {
		got := hex.EncodeToString(md5h.Sum(nil))
		if got != t.ExpectMD5 {
			return total, errs.New(errs.ChecksumMismatch, t.URL, fmt.Errorf("md5 mismatch: expected %s got %s", t.ExpectMD5, got))
		}
	}

	if err := tmp.Close(); err != nil {
		return total, err
	}
	if err := os.Rename(tmpPath, t.Dest); err != nil {
		return total, err
	}
	return total, nil
}

func parseRetryAfter(h string) time.Duration {
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(h); err == nil {
		return time.Duration(secs) * time.Second
	}
	if when, err := http.ParseTime(h); err == nil {
		return time.Until(when)
	}
	return 0
}
