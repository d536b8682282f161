package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mabhi256/jarc/internal/archive"
	"github.com/mabhi256/jarc/internal/loader"
	"github.com/mabhi256/jarc/utils"
)

var validateBase string

var validateCmd = &cobra.Command{
	Use:   "validate [archive.jsa]",
	Short: "Check an archive's integrity",
	Long: `Validate checks the archive gates in mapping order: the header
checksum first, then every region checksum, and with --base the pairing
between a dynamic archive and the base it was dumped against. An archive
failing any gate is rejected as a whole.`,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeArchiveFiles,
	RunE: func(cmd *cobra.Command, args []string) error {
		rep, err := archive.Validate(args[0])

		fmt.Printf("Archive: %s\n", rep.Path)
		if !rep.HeaderOK {
			fmt.Printf("  header    %s\n", utils.CriticalStyle.Render("FAIL"))
			return err
		}
		kind := "dynamic"
		if rep.Static {
			kind = "base"
		}
		fmt.Printf("  header    %s  (%s, requested base %#x)\n",
			utils.GoodStyle.Render("OK"), kind, rep.RequestedBase)
		for _, r := range rep.Regions {
			status := utils.GoodStyle.Render("OK")
			if !r.OK {
				status = utils.CriticalStyle.Render("FAIL")
			}
			fmt.Printf("  %-9s %s  (%s, crc %#08x)\n",
				r.Kind, status, utils.MemorySize(r.Size), r.StoredCRC)
		}

		if err != nil {
			return err
		}

		if validateBase != "" {
			baseRep, baseErr := archive.Validate(validateBase)
			if baseErr != nil {
				return fmt.Errorf("base archive: %w", baseErr)
			}
			if !baseRep.Static {
				return fmt.Errorf("%s is not a base archive", validateBase)
			}
			if rep.Static {
				return fmt.Errorf("%s is a base archive; nothing to pair with %s", args[0], validateBase)
			}
			if err := checkPairing(args[0], validateBase); err != nil {
				fmt.Printf("  pairing   %s\n", utils.CriticalStyle.Render("FAIL"))
				return err
			}
			fmt.Printf("  pairing   %s  (base %s)\n", utils.GoodStyle.Render("OK"), validateBase)
		}

		fmt.Println(utils.GoodStyle.Render("Archive is usable."))
		return nil
	},
}

// checkPairing does the full open, which verifies the stored base header
// checksum against the actual base.
func checkPairing(path, basePath string) error {
	env := loader.NewEnvironment()
	base, err := openBase(basePath, env)
	if err != nil {
		return err
	}
	_, err = archive.Open(path, env.Symtab(), base)
	return err
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&validateBase, "base", "", "Base archive to verify pairing against")
	validateCmd.RegisterFlagCompletionFunc("base", completeArchiveFiles)
}
