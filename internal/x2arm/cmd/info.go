package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"x2arm/internal/loader"
	"x2arm/internal/render"
	"x2arm/internal/x2arm/styles"
)

var infoCmd = &cobra.Command{
	Use:   "info [file]",
	Short: "Print executable metadata without exploring",
	Example: `
# Show format, architecture and entry point
x2arm info /path/to/binary
  `,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		im, err := loader.Open(args[0])
		if err != nil {
			return err
		}
		defer im.Close()

		m, err := render.MetaOf(im)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(m)
		}
		if out == os.Stdout && term.IsTerminal(os.Stdout.Fd()) {
			width, _, err := term.GetSize(os.Stdout.Fd())
			if err != nil || width <= 0 {
				width = 80
			}
			_, err = fmt.Fprint(out, styles.RenderMarkdown(render.Markdown(m), width))
			return err
		}
		return render.WriteMeta(out, m)
	},
}

func init() {
	infoCmd.Flags().BoolP("json", "j", false, "Output metadata as JSON")
	rootCmd.AddCommand(infoCmd)
}
