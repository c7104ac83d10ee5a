package main

import (
	"github.com/alecthomas/kong"

	"github.com/lox/dealproof/cmd/dealproof/shared"
	"github.com/lox/dealproof/internal/config"
)

// version is set by ldflags during build
var version = "dev"

// Globals are flags shared by every command.
type Globals struct {
	Config string `short:"c" default:"dealproof.hcl" type:"path" help:"HCL config file (missing file means defaults)"`
	Debug  bool   `help:"Enable debug logging"`
}

// setup loads configuration and builds loggers.
func (g *Globals) setup() (*config.Config, *shared.Loggers, error) {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return nil, nil, err
	}
	loggers, err := shared.SetupLogger(cfg.Log, g.Debug)
	if err != nil {
		return nil, nil, err
	}
	return cfg, loggers, nil
}

type CLI struct {
	Globals

	Version kong.VersionFlag `short:"v" help:"Show version"`
	Verify  VerifyCmd        `cmd:"" help:"Verify a round's shuffle against the backend or a proof file"`
	Replay  ReplayCmd        `cmd:"" help:"Reconstruct a deck from revealed entropy and seed"`
	Export  ExportCmd        `cmd:"" help:"Verify a round and write its proof document"`
	Watch   WatchCmd         `cmd:"" help:"Follow a table and verify every concluded round"`
	Demo    DemoCmd          `cmd:"" help:"Play a synthetic round through a local dealer"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("dealproof"),
		kong.Description("Commit-reveal shuffle verification for remote card dealers"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": version,
		},
	)
	err := ctx.Run(&cli.Globals)
	ctx.FatalIfErrorf(err)
}
