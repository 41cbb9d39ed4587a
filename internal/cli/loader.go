package cli

import (
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pkg/errors"
)

// scenarioExtensions are the manifest formats harness.LoadScenario accepts.
var scenarioExtensions = []string{".yaml", ".yml", ".json", ".cue", ".hcl"}

// findScenarioFiles expands paths into scenario files. Directories are walked
// recursively; files are taken as given. filter is a glob matched against the
// file name without extension. The result is sorted and free of duplicates.
func findScenarioFiles(paths []string, filter string) ([]string, error) {
	if filter != "" {
		if _, err := filepath.Match(filter, ""); err != nil {
			return nil, errors.Wrapf(err, "invalid filter pattern %q", filter)
		}
	}
	matches := func(path string) bool {
		if filter == "" {
			return true
		}
		base := filepath.Base(path)
		ok, _ := filepath.Match(filter, strings.TrimSuffix(base, filepath.Ext(base)))
		return ok
	}

	var files []string
	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, errors.Wrapf(err, "scenario path not found: %s", root)
		}
		if !info.IsDir() {
			if matches(root) {
				files = append(files, root)
			}
			continue
		}
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != root && (d.Name() == "golden" || strings.HasPrefix(d.Name(), ".")) {
					return filepath.SkipDir
				}
				return nil
			}
			if slices.Contains(scenarioExtensions, strings.ToLower(filepath.Ext(path))) && matches(path) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, errors.Wrapf(err, "walking %s", root)
		}
	}
	slices.Sort(files)
	return slices.Compact(files), nil
}
