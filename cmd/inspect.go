package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mabhi256/jarc/internal/archive"
	"github.com/mabhi256/jarc/internal/loader"
	"github.com/mabhi256/jarc/internal/meta"
	"github.com/mabhi256/jarc/internal/tui"
	"github.com/mabhi256/jarc/utils"
)

var (
	inspectBase string
	inspectTUI  bool
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [archive.jsa]",
	Short: "Show what an archive contains",
	Long: `Inspect decodes an archive and summarizes its contents: region layout,
archived classes per loader, the recorded preload sequences, and the
training records. With --tui the contents open in an interactive
browser.`,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeArchiveFiles,
	RunE: func(cmd *cobra.Command, args []string) error {
		env := loader.NewEnvironment()

		var base *archive.Image
		if inspectBase != "" {
			img, err := openBase(inspectBase, env)
			if err != nil {
				return err
			}
			base = img
		}
		img, err := archive.Open(args[0], env.Symtab(), base)
		if err != nil {
			if errors.Is(err, archive.ErrBaseMismatch) && base == nil {
				return errors.New("dynamic archive requires --base")
			}
			return err
		}

		if inspectTUI {
			return tui.Start(img)
		}
		printSummary(img)
		return nil
	},
}

func printSummary(img *archive.Image) {
	h := img.Header()
	kind := "dynamic archive"
	if img.Static() {
		kind = "base archive"
	}
	fmt.Printf("%s  %s\n", utils.InfoStyle.Render(img.Path()), kind)
	fmt.Printf("  requested %#x..%#x\n", h.RequestedBase, h.RequestedTop)
	for i := range h.Regions {
		r := &h.Regions[i]
		fmt.Printf("  region %-3s %8s  crc %#08x\n", r.Kind, utils.MemorySize(r.Size), r.CRC)
	}

	counts := make(map[meta.Loader]int)
	for _, c := range img.Classes() {
		counts[c.Loader]++
	}
	fmt.Printf("  classes   %d (boot %d, platform %d, app %d)\n",
		len(img.Classes()), counts[meta.BootLoader], counts[meta.PlatformLoader], counts[meta.AppLoader])

	ps := img.PreloadSet()
	fmt.Printf("  preload   boot %d, boot2 %d, platform %d (+%d initiated), app %d (+%d initiated)\n",
		len(ps.Boot), len(ps.Boot2),
		len(ps.Platform), len(ps.PlatformInitiated),
		len(ps.App), len(ps.AppInitiated))

	fmt.Printf("  training  %d records\n", len(img.TrainingRecords()))
}

func init() {
	rootCmd.AddCommand(inspectCmd)

	inspectCmd.Flags().StringVar(&inspectBase, "base", "", "Base archive for a dynamic archive")
	inspectCmd.Flags().BoolVar(&inspectTUI, "tui", false, "Open the interactive browser")
	inspectCmd.RegisterFlagCompletionFunc("base", completeArchiveFiles)
}
