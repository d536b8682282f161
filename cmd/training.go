package cmd

import (
	"errors"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mabhi256/jarc/internal/archive"
	"github.com/mabhi256/jarc/internal/loader"
	"github.com/mabhi256/jarc/internal/snapshot"
	"github.com/mabhi256/jarc/internal/training"
)

var trainingBase string

var trainingCmd = &cobra.Command{
	Use:   "training",
	Short: "Work with training data",
}

var trainingShowCmd = &cobra.Command{
	Use:   "show [snapshot.jwc|archive.jsa]",
	Short: "Print training records",
	Long: `Show prints the training records from a snapshot or an archive in dump
order: initialized classes first in initialization order, then the rest,
with ids assigned on first mention.`,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeTrainingFiles,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()
		defer log.Sync()

		env := loader.NewEnvironment()

		var store *training.Store
		if strings.HasSuffix(args[0], ".jsa") {
			store = training.NewStore(false)
			var base *archive.Image
			if trainingBase != "" {
				img, err := openBase(trainingBase, env)
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
			store.Adopt(img.TrainingRecords())
		} else {
			store = training.NewStore(true)
			if err := snapshot.Load(args[0], env, store, log); err != nil {
				return err
			}
		}

		return training.NewDumper(os.Stdout).Dump(store)
	},
}

func init() {
	rootCmd.AddCommand(trainingCmd)
	trainingCmd.AddCommand(trainingShowCmd)

	trainingShowCmd.Flags().StringVar(&trainingBase, "base", "", "Base archive for a dynamic archive")
	trainingShowCmd.RegisterFlagCompletionFunc("base", completeArchiveFiles)
}
