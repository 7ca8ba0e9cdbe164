package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"

	"github.com/binpack/binpack/matchspec"
)

// Publisher uploads a built archive plus its repodata_record.json to
// one channel's write endpoint.
type Publisher struct {
	log        *slog.Logger
	client     *http.Client
	channelURL string // e.g. https://channel.example.com/my-channel
}

func New(log *slog.Logger, client *http.Client, channelURL string) *Publisher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Publisher{log: log, client: client, channelURL: channelURL}
}

// Publish uploads archivePath as <channelURL>/<subdir>/<pkg.Fn> and
// the package's repodata_record.json alongside it, both authenticated
// with a bearer JWT derived from a local SSH key.
func (p *Publisher) Publish(ctx context.Context, archivePath string, pkg matchspec.PackageInfo, subdir string) error {
	token, err := tokenFromSSHKeys(p.log)
	if err != nil {
		return err
	}

	if err := p.putFile(ctx, token, subdir, pkg.Fn, archivePath); err != nil {
		return fmt.Errorf("publish: uploading archive: %w", err)
	}

	record, err := json.MarshalIndent(pkg, "", "  ")
	if err != nil {
		return err
	}
	recordName := pkg.Fn + ".repodata_record.json"
	if err := p.putBytes(ctx, token, subdir, recordName, record); err != nil {
		return fmt.Errorf("publish: uploading repodata_record.json: %w", err)
	}
	return nil
}

func (p *Publisher) putFile(ctx context.Context, token, subdir, name, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	return p.put(ctx, token, subdir, name, f, info.Size())
}

func (p *Publisher) putBytes(ctx context.Context, token, subdir, name string, data []byte) error {
	return p.put(ctx, token, subdir, name, bytes.NewReader(data), int64(len(data)))
}

func (p *Publisher) put(ctx context.Context, token, subdir, name string, body io.Reader, size int64) error {
	url := p.channelURL + "/" + path.Join(subdir, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, body)
	if err != nil {
		return err
	}
	req.ContentLength = size
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("publish: %s returned %d: %s", url, resp.StatusCode, respBody)
	}
	p.log.Info("published", "url", url, "size", size, "filename", filepath.Base(name))
	return nil
}
