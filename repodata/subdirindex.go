// Package repodata implements the SubdirIndex: for one (channel, platform)
// pair, it coordinates a Fetcher and a local cache directory to produce a
// RepoSnapshot, decompressing and memoizing freshness the way a package
// manager's index loader does across repeated invocations.
package repodata

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/binpack/binpack/errs"
	"github.com/binpack/binpack/fetch"
)

// SubdirIndex mediates between a Fetcher and a local cache directory for
// one (channel, subdir) pair.
type SubdirIndex struct {
	Channel  string
	Subdir   string
	BaseURL  string // e.g. "https://repo.example.org/main"
	CacheDir string

	fetcher *fetch.Fetcher
	log     *slog.Logger

	status   Status
	snapshot RepoSnapshot
	loadErr  error
}

func New(log *slog.Logger, fetcher *fetch.Fetcher, channel, subdir, baseURL, cacheDir string) *SubdirIndex {
	return &SubdirIndex{
		Channel:  channel,
		Subdir:   subdir,
		BaseURL:  strings.TrimRight(baseURL, "/"),
		CacheDir: cacheDir,
		fetcher:  fetcher,
		log:      log,
		status:   Unloaded,
	}
}

func (si *SubdirIndex) Status() Status       { return si.status }
func (si *SubdirIndex) Snapshot() RepoSnapshot { return si.snapshot }
func (si *SubdirIndex) Err() error           { return si.loadErr }

func (si *SubdirIndex) statePath() string {
	return filepath.Join(si.CacheDir, si.Subdir+".state.json")
}

func (si *SubdirIndex) jsonPath() string {
	return filepath.Join(si.CacheDir, si.Subdir, "repodata.json")
}

// Load runs the Unloaded→...→Loaded state machine described for
// SubdirIndex, returning the terminal error (if any) and also recording
// it in si.Err() / si.Status() == Error.
func (si *SubdirIndex) Load(ctx context.Context) error {
	if err := os.MkdirAll(si.CacheDir, 0o755); err != nil {
		return si.fail(err)
	}

	st, ok := si.loadState()
	if !ok {
		si.status = NeedFetch
		return si.fetchAndLoad(ctx, st)
	}

	if si.isFresh(st) {
		si.status = CacheFresh
		return si.finishFromCache(st)
	}

	si.status = NeedFetch
	return si.fetchAndLoad(ctx, st)
}

func (si *SubdirIndex) loadState() (State, bool) {
	data, err := os.ReadFile(si.statePath())
	if err != nil {
		return State{}, false
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		// A missing or unparseable sidecar triggers a full refetch.
		return State{}, false
	}
	return st, true
}

// isFresh implements the freshness rule: age <= Cache-Control max-age.
// Validity of the stored ETag/Last-Modified is not re-checked here; that
// happens on the conditional GET itself (a 304 confirms it, a 200 means
// it had gone stale upstream regardless of our local clock).
func (si *SubdirIndex) isFresh(st State) bool {
	if _, err := os.Stat(si.jsonPath()); err != nil {
		return false
	}
	maxAge, ok := parseMaxAge(st.CacheControl)
	if !ok {
		return false
	}
	age := time.Since(time.Unix(0, st.MtimeNS))
	return age <= maxAge
}

func parseMaxAge(cacheControl string) (time.Duration, bool) {
	for _, part := range strings.Split(cacheControl, ",") {
		part = strings.TrimSpace(part)
		if !strings.HasPrefix(part, "max-age=") {
			continue
		}
		secs, err := strconv.Atoi(strings.TrimPrefix(part, "max-age="))
		if err != nil {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	return 0, false
}

func (si *SubdirIndex) finishFromCache(st State) error {
	data, err := os.ReadFile(si.jsonPath())
	if err != nil {
		si.status = NeedFetch
		return si.fetchAndLoad(context.Background(), st)
	}
	snap, err := ParseSnapshot(si.Channel, si.Subdir, data)
	if err != nil {
		return si.fail(err)
	}
	si.snapshot = snap
	si.status = Loaded
	return nil
}

// candidateURL picks the repodata variant to request: a previously
// confirmed .zst endpoint is preferred, with plain .json as the
// universally supported fallback.
func (si *SubdirIndex) candidateURL(st State) (url, codec string) {
	if st.HasZst.Value {
		return si.BaseURL + "/" + si.Subdir + "/repodata.json.zst", ".zst"
	}
	return si.BaseURL + "/" + si.Subdir + "/repodata.json", ""
}

func (si *SubdirIndex) fetchAndLoad(ctx context.Context, prior State) error {
	url, codec := si.candidateURL(prior)
	rawPath := si.jsonPath() + codec + ".download"

	res := si.fetcher.Perform(ctx, fetch.Target{
		URL:               url,
		Dest:              rawPath,
		PriorETag:         prior.ETag,
		PriorLastModified: prior.Mod,
	})

	switch res.Status {
	case fetch.StatusNotModified:
		si.status = CacheFresh
		return si.finishFromCache(prior)

	case fetch.StatusFetched:
		si.status = Downloaded
		defer os.Remove(rawPath)

		if codec != "" {
			if err := decompressTo(rawPath, si.jsonPath()); err != nil {
				return si.fail(err)
			}
		} else if err := os.Rename(rawPath, si.jsonPath()); err != nil {
			return si.fail(err)
		}

		info, statErr := os.Stat(si.jsonPath())
		var size, mtimeNS int64
		if statErr == nil {
			size = info.Size()
			mtimeNS = info.ModTime().UnixNano()
		}
		newState := State{
			Mod:          res.LastModified,
			ETag:         res.ETag,
			CacheControl: res.CacheControl,
			URL:          url,
			Size:         size,
			MtimeNS:      mtimeNS,
			HasZst:       ZstProbe{Value: codec == ".zst", LastChecked: time.Now()},
		}
		if err := si.writeState(newState); err != nil {
			si.log.Warn("failed to write repodata state sidecar", slog.String("subdir", si.Subdir), slog.Any("error", err))
		}
		return si.finishFromCache(newState)

	default:
		// A 4xx other than 304, or a fatal network error, is fatal for
		// this subdir but must not poison other subdirs in a run: the
		// caller (a multi-subdir loader) keeps going regardless.
		return si.fail(errs.New(errs.NetworkFatal, si.Channel+"/"+si.Subdir, res.Err))
	}
}

func (si *SubdirIndex) writeState(st State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	tmp := si.statePath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, si.statePath())
}

func (si *SubdirIndex) fail(err error) error {
	si.status = Error
	si.loadErr = err
	return fmt.Errorf("repodata: load %s/%s: %w", si.Channel, si.Subdir, err)
}
