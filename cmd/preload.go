package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mabhi256/jarc/internal/archive"
	"github.com/mabhi256/jarc/internal/loader"
	"github.com/mabhi256/jarc/internal/meta"
	"github.com/mabhi256/jarc/internal/prelink"
	"github.com/mabhi256/jarc/internal/training"
	"github.com/mabhi256/jarc/utils"
)

var preloadBase string

var preloadCmd = &cobra.Command{
	Use:   "preload [archive.jsa]",
	Short: "Replay an archive's preload sequences",
	Long: `Preload simulates the runtime side of an archive: it maps the archive
(and its base, for a dynamic one), walks the recorded preload sequences
loader by loader in boot, platform, app order, and verifies that every
class resolves to the archived copy. A mismatch means the class path or
an instrumentation agent changed since the training run.`,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeArchiveFiles,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()
		defer log.Sync()

		env := loader.NewEnvironment()
		store := training.NewStore(false)

		var static, dynamic *archive.Image
		if preloadBase != "" {
			base, err := openBase(preloadBase, env)
			if err != nil {
				return err
			}
			static = base
			img, err := archive.Open(args[0], env.Symtab(), base)
			if err != nil {
				return err
			}
			dynamic = img
		} else {
			img, err := archive.Open(args[0], env.Symtab(), nil)
			if err != nil {
				return err
			}
			if !img.Static() {
				return errors.New("dynamic archive requires --base")
			}
			static = img
		}

		// Classes from the opened archives become loadable; preloading
		// is what actually loads them.
		installLoadable(env, static, dynamic)

		var staticSet, dynamicSet *prelink.PreloadSet
		staticSet = static.PreloadSet()
		if dynamic != nil {
			dynamicSet = dynamic.PreloadSet()
			store.Adopt(dynamic.TrainingRecords())
		} else {
			store.Adopt(static.TrainingRecords())
		}

		driver := prelink.NewDriver(env, log, staticSet, dynamicSet)
		// The boot pass runs twice: java.base first, the remaining
		// boot classes once the module graph would be up.
		passes := []meta.Loader{meta.BootLoader, meta.BootLoader, meta.PlatformLoader, meta.AppLoader}
		for _, l := range passes {
			if err := driver.Preload(l); err != nil {
				var mismatch *prelink.AgentMismatchError
				if errors.As(err, &mismatch) {
					fmt.Println(utils.CriticalStyle.Render("Preload aborted: " + mismatch.Error()))
				}
				return err
			}
			fmt.Printf("  %-9s %d classes loaded\n", l, len(env.LoadedClasses(l)))
		}

		if driver.Finished() {
			fmt.Println(utils.GoodStyle.Render("Class preloading finished."))
		}
		fmt.Printf("Training records available: %d\n", store.Len())
		return nil
	},
}

// installLoadable defines every archived class that is not yet loaded.
// openBase already registered the base's classes as loaded; a dynamic
// archive's classes start out merely loadable.
func installLoadable(env *loader.Environment, static, dynamic *archive.Image) {
	if dynamic != nil {
		for _, c := range dynamic.Classes() {
			env.Define(c)
		}
		return
	}
	for _, c := range static.Classes() {
		env.Define(c)
	}
}

func init() {
	rootCmd.AddCommand(preloadCmd)

	preloadCmd.Flags().StringVar(&preloadBase, "base", "", "Base archive the dynamic archive was dumped against")
	preloadCmd.RegisterFlagCompletionFunc("base", completeArchiveFiles)
}
