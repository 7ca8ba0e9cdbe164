package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/binpack/binpack/cmd/globals"
	"github.com/binpack/binpack/matchspec"
	"github.com/binpack/binpack/publish"
)

type PublishCmd struct {
	Archive    string `arg:"" help:"Path to a built package archive (.conda or .tar.bz2)" type:"path"`
	ChannelURL string `arg:"" help:"Channel write endpoint, e.g. https://channel.example.com/my-channel"`
	Subdir     string `help:"Target platform subdir" default:"linux-64"`
	Metadata   string `help:"Path to a repodata_record.json-shaped metadata file; derived from the filename if omitted" type:"path"`
}

func (cmd *PublishCmd) Run(g *globals.Globals) error {
	log := newLogger(g.Verbose)

	pkg, err := cmd.packageInfo()
	if err != nil {
		return err
	}

	p := publish.New(log, http.DefaultClient, cmd.ChannelURL)
	if err := p.Publish(context.Background(), cmd.Archive, pkg, cmd.Subdir); err != nil {
		return err
	}
	fmt.Printf("published %s to %s/%s\n", pkg.Fn, cmd.ChannelURL, cmd.Subdir)
	return nil
}

func (cmd *PublishCmd) packageInfo() (matchspec.PackageInfo, error) {
	if cmd.Metadata != "" {
		data, err := os.ReadFile(cmd.Metadata)
		if err != nil {
			return matchspec.PackageInfo{}, err
		}
		var pkg matchspec.PackageInfo
		if err := json.Unmarshal(data, &pkg); err != nil {
			return matchspec.PackageInfo{}, err
		}
		if pkg.Fn == "" {
			pkg.Fn = filepath.Base(cmd.Archive)
		}
		return pkg, nil
	}

	info, err := os.Stat(cmd.Archive)
	if err != nil {
		return matchspec.PackageInfo{}, err
	}
	fn := filepath.Base(cmd.Archive)
	name, version, build, err := parseBuiltFilename(fn)
	if err != nil {
		return matchspec.PackageInfo{}, err
	}
	return matchspec.PackageInfo{
		Name: name, Version: version, BuildString: build,
		Fn: fn, Size: info.Size(),
	}, nil
}

// parseBuiltFilename splits a conda-style "<name>-<version>-<build>.ext"
// archive filename into its three components. Per convention the name
// itself may contain dashes, so the split is anchored from the right:
// the last two dash-separated segments are build and version.
func parseBuiltFilename(fn string) (name, version, build string, err error) {
	base := strings.TrimSuffix(strings.TrimSuffix(fn, ".tar.bz2"), ".conda")
	parts := strings.Split(base, "-")
	if len(parts) < 3 {
		return "", "", "", fmt.Errorf("publish: %q is not a valid <name>-<version>-<build> archive filename", fn)
	}
	build = parts[len(parts)-1]
	version = parts[len(parts)-2]
	name = strings.Join(parts[:len(parts)-2], "-")
	return name, version, build, nil
}
