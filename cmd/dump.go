package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mabhi256/jarc/internal/archive"
	"github.com/mabhi256/jarc/internal/loader"
	"github.com/mabhi256/jarc/internal/prelink"
	"github.com/mabhi256/jarc/internal/snapshot"
	"github.com/mabhi256/jarc/internal/training"
)

var (
	dumpOutput string
	dumpBase   string
	dumpAtExit bool
)

var dumpCmd = &cobra.Command{
	Use:   "dump [snapshot.jwc]",
	Short: "Build an archive from a training-run snapshot",
	Long: `Dump replays a training-run snapshot into a frozen class graph and
builds an archive from it: eligible classes, their safely-archivable
resolved constants, the preload order, and the training records.

Without --base the result is a base (static) archive. With --base the
result is a dynamic archive layered on top of the given base: classes
already present in the base are referenced, not copied.`,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeSnapshotFiles,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()
		defer log.Sync()

		env := loader.NewEnvironment()
		store := training.NewStore(true)

		var base *archive.Image
		if dumpBase != "" {
			img, err := openBase(dumpBase, env)
			if err != nil {
				return err
			}
			base = img
		}

		if err := snapshot.Load(args[0], env, store, log); err != nil {
			return err
		}

		pre := prelink.New(env, log)
		defer pre.Dispose()
		if base != nil {
			pre.AddBasePreloaded(base.PreloadSet())
		}

		builder, err := archive.New(env, pre, store, log, archive.Config{
			Path:   dumpOutput,
			Static: base == nil,
			Base:   base,
		})
		if err != nil {
			return err
		}
		if err := builder.Dump(); err != nil {
			if dumpAtExit {
				// At-exit dumps ride along on a normal shutdown; a
				// failed dump is reported but must not fail the host.
				fmt.Printf("Archive dump skipped: %v\n", err)
				return nil
			}
			return fmt.Errorf("dump failed: %w", err)
		}

		fmt.Printf("Archive written to %s\n", dumpOutput)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dumpCmd)

	dumpCmd.Flags().StringVarP(&dumpOutput, "output", "o", "app.jsa", "Archive output path")
	dumpCmd.Flags().StringVar(&dumpBase, "base", "", "Base archive for a dynamic dump")
	dumpCmd.Flags().BoolVar(&dumpAtExit, "at-exit", false, "Report dump failures without a non-zero exit")
	dumpCmd.RegisterFlagCompletionFunc("base", completeArchiveFiles)
}
