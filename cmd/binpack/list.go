package main

import (
	"fmt"
	"sort"

	"github.com/binpack/binpack/cmd/globals"
)

type ListCmd struct {
	Prefix string `help:"Environment prefix to list" default:"." type:"path" env:"BINPACK_PREFIX"`
}

func (cmd *ListCmd) Run(g *globals.Globals) error {
	records, err := installedSet(cmd.Prefix)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(records))
	for fn := range records {
		names = append(names, fn)
	}
	sort.Strings(names)

	for _, fn := range names {
		pkg := records[fn]
		fmt.Printf("%-30s %-15s %s\n", pkg.Name, pkg.Version, pkg.BuildString)
	}
	return nil
}
