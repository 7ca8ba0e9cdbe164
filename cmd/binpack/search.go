package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/binpack/binpack/cmd/globals"
	"github.com/binpack/binpack/matchspec"
)

type SearchCmd struct {
	ChannelFlags
	Spec string `arg:"" help:"Match spec to search for, e.g. numpy or 'numpy>=1.20'"`
}

func (cmd *SearchCmd) Run(g *globals.Globals) error {
	log := newLogger(g.Verbose)
	cfg := cmd.ChannelFlags.toConfig()

	spec, err := matchspec.ParseMatchSpec(cmd.Spec)
	if err != nil {
		return err
	}

	fetcher := newFetcher(log, nil, cfg)
	p, err := loadPool(context.Background(), log, cfg, fetcher)
	if err != nil {
		return err
	}

	candidates := p.SelectSolvables(spec)
	sort.Slice(candidates, func(i, j int) bool { return candidates[j].Less(candidates[i]) })
	for _, pkg := range candidates {
		fmt.Printf("%-30s %-15s %-10s %s\n", pkg.Name, pkg.Version, pkg.BuildString, pkg.Channel)
	}
	return nil
}
