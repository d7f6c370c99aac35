package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/urfave/cli/v2"

	doublestack "github.com/cb1kenobi/double-stack"
)

// fileConfig mirrors the TOML settings file. Pointer fields distinguish
// "absent" from zero values; everything flows through Settings.Set so the
// file path gets the same validation as any other caller.
type fileConfig struct {
	ChainDepthLimit *float64 `toml:"chain_depth_limit"`
	SeparatorToken  *string  `toml:"separator_token"`
	Color           bool     `toml:"color"`
}

// newApp creates the CLI application with all commands.
func newApp() *cli.App {
	return &cli.App{
		Name:    "dstrace",
		Usage:   "Exercise causal async stack traces and inspect loop resources",
		Version: Version,
		Commands: []*cli.Command{
			demoCmd(),
			resourcesCmd(),
		},
	}
}

// demoCmd runs a nested scheduling chain that fails at the bottom and prints
// the merged trace.
func demoCmd() *cli.Command {
	return &cli.Command{
		Name:  "demo",
		Usage: "Run a nested timer chain that fails at the bottom and print its merged trace",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "depth", Aliases: []string{"d"}, Value: 3, Usage: "Number of nested scheduling boundaries"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: -1, Usage: "Chain depth limit (default: library default)"},
			&cli.StringFlag{Name: "separator", Aliases: []string{"s"}, Usage: "Separator token between chain segments"},
			&cli.BoolFlag{Name: "color", Usage: "Colorize the rendered trace"},
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "TOML settings file"},
		},
		Action: func(c *cli.Context) error {
			set := doublestack.NewSettings()
			if path := c.String("config"); path != "" {
				if err := applyConfigFile(set, path); err != nil {
					return err
				}
			}
			if c.IsSet("limit") {
				if err := set.Set("chain_depth_limit", c.Int("limit")); err != nil {
					return err
				}
			}
			if sep := c.String("separator"); sep != "" {
				if err := set.SetSeparatorToken(sep); err != nil {
					return err
				}
			}
			if c.Bool("color") {
				if err := set.SetRenderer(doublestack.ColorRenderer()); err != nil {
					return err
				}
			}

			trace := runDemo(doublestack.NewLoop(set), c.Int("depth"))
			fmt.Fprintln(c.App.Writer, trace)
			return nil
		},
	}
}

// resourcesCmd arms a few timers and prints the resource snapshot as JSON.
func resourcesCmd() *cli.Command {
	return &cli.Command{
		Name:  "resources",
		Usage: "Print a point-in-time snapshot of outstanding async resources as JSON",
		Action: func(c *cli.Context) error {
			loop := doublestack.NewLoop(nil)
			a := loop.SetTimeout(func() {}, time.Hour)
			b := loop.SetInterval(func() {}, time.Minute)
			defer a.Stop()
			defer b.Stop()

			rep, err := loop.Resources()
			if err != nil {
				// The loop-owned half is still valid; report and continue.
				fmt.Fprintln(os.Stderr, "dstrace: partial process state:", err)
			}
			enc := json.NewEncoder(c.App.Writer)
			enc.SetIndent("", "  ")
			return enc.Encode(rep)
		},
	}
}

// applyConfigFile loads a TOML settings file into set via the dynamic path.
func applyConfigFile(set *doublestack.Settings, path string) error {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	if fc.ChainDepthLimit != nil {
		if err := set.Set("chain_depth_limit", *fc.ChainDepthLimit); err != nil {
			return err
		}
	}
	if fc.SeparatorToken != nil {
		if err := set.Set("separator_token", *fc.SeparatorToken); err != nil {
			return err
		}
	}
	if fc.Color {
		if err := set.SetRenderer(doublestack.ColorRenderer()); err != nil {
			return err
		}
	}
	return nil
}

// runDemo schedules a chain of depth nested timers whose innermost callback
// fails, and returns the merged trace.
func runDemo(loop *doublestack.Loop, depth int) (trace string) {
	defer func() {
		if v := recover(); v != nil {
			err, ok := v.(error)
			if !ok {
				panic(v)
			}
			trace = doublestack.Stacktrace(err)
		}
	}()

	var schedule func(n int)
	schedule = func(n int) {
		if n <= 0 {
			panic(errors.New("demo failure at the bottom of the chain"))
		}
		loop.SetTimeout(func() { schedule(n - 1) }, time.Millisecond)
	}
	// A non-positive depth requests no boundaries at all: schedule nothing and
	// let the loop drain.
	loop.Run(func() {
		if depth > 0 {
			schedule(depth)
		}
	})
	return "loop drained without failing (depth <= 0)"
}
