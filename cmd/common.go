package cmd

import (
	"fmt"

	"github.com/mabhi256/jarc/internal/archive"
	"github.com/mabhi256/jarc/internal/loader"
	"github.com/mabhi256/jarc/utils"
)

// openBase maps a base archive and registers its classes as already
// loaded, the state a dynamic dump or a preloading run starts from.
func openBase(path string, env *loader.Environment) (*archive.Image, error) {
	img, err := archive.Open(path, env.Symtab(), nil)
	if err != nil {
		return nil, fmt.Errorf("opening base archive %s: %w", path, err)
	}
	if !img.Static() {
		return nil, fmt.Errorf("%s is not a base archive", path)
	}
	for _, c := range img.Classes() {
		if err := env.RegisterLoaded(c); err != nil {
			return nil, fmt.Errorf("installing base archive classes: %w", err)
		}
	}
	return img, nil
}

var (
	completeArchiveFiles  = utils.CompleteFilesByExtension([]string{".jsa"}, false)
	completeSnapshotFiles = utils.CompleteFilesByExtension([]string{".jwc", ".json"}, false)
	completeTrainingFiles = utils.CompleteFilesByExtension([]string{".jwc", ".json", ".jsa"}, false)
)
