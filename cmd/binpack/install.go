package main

import (
	"context"

	"github.com/binpack/binpack/cmd/globals"
	"github.com/binpack/binpack/matchspec"
	"github.com/binpack/binpack/solver"
)

type InstallCmd struct {
	ChannelFlags
	Spec           []string `arg:"" help:"Package match specs to install, e.g. numpy>=1.20"`
	DryRun         bool     `help:"Resolve and print the plan without downloading or linking"`
	NoDeps         bool     `help:"Skip pulling in dependencies"`
	OnlyDeps       bool     `help:"Install the dependency closure but not the named package(s) themselves"`
	ForceReinstall bool     `help:"Reinstall even if already satisfied"`
}

func (cmd *InstallCmd) Run(g *globals.Globals) error {
	log := newLogger(g.Verbose)
	cfg := cmd.ChannelFlags.toConfig()

	jobs, err := specsToJobs(solver.Install, cmd.Spec)
	if err != nil {
		return err
	}
	m, _ := loadMetrics(log)
	flags := solver.Flags{NoDeps: cmd.NoDeps, OnlyDeps: cmd.OnlyDeps, ForceReinstall: cmd.ForceReinstall}
	return applyJobs(context.Background(), log, cfg, &cmd.ChannelFlags, jobs, flags, cmd.DryRun, m)
}

type RemoveCmd struct {
	ChannelFlags
	Spec   []string `arg:"" help:"Package match specs to remove"`
	DryRun bool     `help:"Resolve and print the plan without unlinking"`
}

func (cmd *RemoveCmd) Run(g *globals.Globals) error {
	log := newLogger(g.Verbose)
	cfg := cmd.ChannelFlags.toConfig()

	jobs, err := specsToJobs(solver.Remove, cmd.Spec)
	if err != nil {
		return err
	}
	m, _ := loadMetrics(log)
	return applyJobs(context.Background(), log, cfg, &cmd.ChannelFlags, jobs, solver.Flags{}, cmd.DryRun, m)
}

type UpdateCmd struct {
	ChannelFlags
	Spec           []string `arg:"" optional:"" help:"Package match specs to update; all installed packages if omitted"`
	DryRun         bool     `help:"Resolve and print the plan without downloading or linking"`
	AllowDowngrade bool     `help:"Allow the solver to pick a lower version than installed"`
}

func (cmd *UpdateCmd) Run(g *globals.Globals) error {
	log := newLogger(g.Verbose)
	cfg := cmd.ChannelFlags.toConfig()

	specs := cmd.Spec
	if len(specs) == 0 {
		installed, err := installedSet(cfg.Prefix)
		if err != nil {
			return err
		}
		for _, pkg := range installed {
			specs = append(specs, pkg.Name)
		}
	}

	jobs, err := specsToJobs(solver.Update, specs)
	if err != nil {
		return err
	}
	m, _ := loadMetrics(log)
	return applyJobs(context.Background(), log, cfg, &cmd.ChannelFlags, jobs, solver.Flags{AllowDowngrade: cmd.AllowDowngrade}, cmd.DryRun, m)
}

func specsToJobs(kind solver.JobKind, raw []string) ([]solver.Job, error) {
	jobs := make([]solver.Job, 0, len(raw))
	for _, s := range raw {
		spec, err := matchspec.ParseMatchSpec(s)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, solver.Job{Kind: kind, Spec: spec})
	}
	return jobs, nil
}
