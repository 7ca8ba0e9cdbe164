package main

import (
	"fmt"

	"github.com/alecthomas/kong"
	"github.com/binpack/binpack/cmd/globals"
)

type CLI struct {
	globals.Globals
	Version      VersionCmd      `cmd:"" help:"Show version information"`
	Install      InstallCmd      `cmd:"" help:"Install packages into a prefix"`
	Remove       RemoveCmd       `cmd:"" help:"Remove packages from a prefix"`
	Update       UpdateCmd       `cmd:"" help:"Update installed packages"`
	List         ListCmd         `cmd:"" help:"List packages installed in a prefix"`
	Search       SearchCmd       `cmd:"" help:"Search channels for packages matching a spec"`
	Clean        CleanCmd        `cmd:"" help:"Remove unreferenced tarballs and extracted packages from the cache"`
	Publish      PublishCmd      `cmd:"" help:"Publish a built package archive to a channel"`
	Trust        TrustCmd        `cmd:"" help:"Content-trust chain commands"`
	ServeMetrics ServeMetricsCmd `cmd:"" help:"Serve Prometheus metrics for a long-running binpack process"`
}

var Version = "dev"

type VersionCmd struct{}

func (cmd *VersionCmd) Run(g *globals.Globals) error {
	fmt.Printf("%s", Version)
	return nil
}

func main() {
	cli := CLI{
		Globals: globals.Globals{},
	}

	ctx := kong.Parse(&cli,
		kong.Name("binpack"),
		kong.Description("Resolve, fetch, and link binary packages from conda-style channels"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	err := ctx.Run(&cli.Globals)
	ctx.FatalIfErrorf(err)
}
