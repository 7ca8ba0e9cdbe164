// Package globals holds the flags every subcommand needs regardless of
// which one runs, following kong's embedded-struct convention.
package globals

// Globals is embedded into the top-level CLI struct and passed to every
// subcommand's Run method.
type Globals struct {
	Verbose bool `help:"Enable debug logging" short:"v" env:"BINPACK_VERBOSE"`
}
