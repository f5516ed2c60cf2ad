package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/pprof"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/log"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"x2arm/internal/disasm"
	"x2arm/internal/logging"
	"x2arm/internal/ui/colorize"
	"x2arm/internal/x2arm/config"
	xlog "x2arm/internal/x2arm/log"
)

func init() {
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Debug")

	rootCmd.Flags().BoolP("help", "h", false, "Help")
	rootCmd.Flags().BoolP("no-tui", "n", false, "Print the listing without the TUI")
	rootCmd.Flags().BoolP("full", "f", false, "Show encoded instruction bytes (implies --no-tui)")
	rootCmd.Flags().BoolP("json", "j", false, "Output the graph as JSON")
	rootCmd.Flags().Bool("dot", false, "Output the graph as Graphviz DOT")
	rootCmd.Flags().Int("max-blocks", config.Default().MaxBlocks, "Blocks decoded before exploration stops")
	rootCmd.Flags().Int("max-block-insts", config.Default().MaxBlockInsts, "Instructions decoded per block")
	rootCmd.Flags().Int("workers", 1, "Concurrent block decoders")
	rootCmd.Flags().String("timeout", "", "Exploration time limit, e.g. 30s")
	rootCmd.Flags().String("syntax", string(disasm.SyntaxIntel), fmt.Sprintf("Assembly syntax: %v", disasm.Syntaxes))
	rootCmd.Flags().Bool("symbols", false, "Also explore every function symbol in the text section")
	rootCmd.Flags().String("config", "", "JSON config file")
	rootCmd.Flags().String("cpuprofile", "", "Write CPU profile to file")
	rootCmd.Flags().String("memprofile", "", "Write memory profile to file")
}

var rootCmd = &cobra.Command{
	Use:   "x2arm [file]",
	Short: "Recover the control-flow graph of an x86 executable",
	Long: `x2arm loads an ELF, PE or Mach-O executable and follows direct jumps and
calls from its entry point, printing every basic block it reaches.`,
	Example: `
# Browse the blocks of a binary interactively
x2arm /path/to/binary

# Print the listing with instruction bytes
x2arm -f /path/to/binary

# Export the graph for Graphviz
x2arm --dot /path/to/binary | dot -Tsvg > cfg.svg
  `,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := settings(cmd)
		if err != nil {
			return err
		}

		profile := c.ProfilePath
		if profile != "" {
			f, err := os.Create(profile)
			if err != nil {
				return fmt.Errorf("could not create CPU profile: %w", err)
			}
			defer f.Close()
			if err := pprof.StartCPUProfile(f); err != nil {
				return fmt.Errorf("could not start CPU profile: %w", err)
			}
			defer pprof.StopCPUProfile()
		}
		if memprofile, _ := cmd.Flags().GetString("memprofile"); memprofile != "" {
			defer writeHeapProfile(cmd.ErrOrStderr(), memprofile)
		}

		lg := logging.NewLogger(".")
		defer lg.Close()
		if c.Debug {
			lg.SetLevel(log.DebugLevel)
		}
		xlog.Setup(c.Debug)

		noTUI, _ := cmd.Flags().GetBool("no-tui")
		interactive := !noTUI && !c.Full && c.Output == config.OutputText &&
			cmd.OutOrStdout() == os.Stdout && term.IsTerminal(os.Stdout.Fd())
		if interactive {
			return runTUI(cmd.Context(), args[0], c, lg.Logger)
		}

		s, err := analyze(cmd.Context(), args[0], c, lg.Logger)
		if err != nil {
			return err
		}
		defer s.Close()

		color := c.Output == config.OutputText && colorize.Enabled() &&
			cmd.OutOrStdout() == os.Stdout && term.IsTerminal(os.Stdout.Fd())
		if err := writeListing(cmd.OutOrStdout(), s, c, color); err != nil {
			return err
		}
		return finish(cmd.ErrOrStderr(), s)
	},
}

// settings merges the defaults, the --config file and explicitly set flags,
// in increasing order of precedence.
func settings(cmd *cobra.Command) (config.Config, error) {
	c := config.Default()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		var err error
		if c, err = config.Load(path); err != nil {
			return c, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("debug") {
		c.Debug, _ = flags.GetBool("debug")
	}
	if flags.Changed("full") {
		c.Full, _ = flags.GetBool("full")
	}
	if flags.Changed("symbols") {
		c.Symbols, _ = flags.GetBool("symbols")
	}
	if flags.Changed("syntax") {
		c.Syntax, _ = flags.GetString("syntax")
	}
	if flags.Changed("timeout") {
		c.Timeout, _ = flags.GetString("timeout")
	}
	if flags.Changed("max-blocks") {
		c.MaxBlocks, _ = flags.GetInt("max-blocks")
	}
	if flags.Changed("max-block-insts") {
		c.MaxBlockInsts, _ = flags.GetInt("max-block-insts")
	}
	if flags.Changed("workers") {
		c.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("cpuprofile") {
		c.ProfilePath, _ = flags.GetString("cpuprofile")
	}
	jsonOut, _ := flags.GetBool("json")
	dotOut, _ := flags.GetBool("dot")
	switch {
	case jsonOut && dotOut:
		return c, fmt.Errorf("--json and --dot are mutually exclusive")
	case jsonOut:
		c.Output = config.OutputJSON
	case dotOut:
		c.Output = config.OutputDOT
	}
	return c, c.Validate()
}

func writeHeapProfile(stderr io.Writer, path string) {
	f, err := os.Create(path)
	if err != nil {
		fmt.Fprintf(stderr, "could not create memory profile: %v\n", err)
		return
	}
	defer f.Close()
	if err := pprof.WriteHeapProfile(f); err != nil {
		fmt.Fprintf(stderr, "could not write memory profile: %v\n", err)
	}
}

// Execute runs the root command and exits 1 on failure. fang styles the
// help and errors on a terminal; piped or --no-tui runs use plain cobra.
func Execute() {
	plain := !term.IsTerminal(os.Stdout.Fd())
	for _, arg := range os.Args[1:] {
		switch arg {
		case "--no-tui", "-n", "--full", "-f", "--json", "-j", "--dot":
			plain = true
		}
	}

	if plain {
		if err := rootCmd.Execute(); err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			slog.Debug("command failed", "error", err)
			os.Exit(1)
		}
		return
	}
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}
