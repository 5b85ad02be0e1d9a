package images

import (
	"os"
	"path/filepath"
	"sort"
)

// ListImageFiles returns the image files directly inside dir, sorted by name.
//
// Arguments:
//   - dir: Directory path containing image files.
//   - extensions: Accepted extensions; Extensions when empty.
//
// Returns:
//   - []string: Full paths of the image files.
//   - error: Error if the directory cannot be read.
func ListImageFiles(dir string, extensions ...string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if IsImageFile(entry.Name(), extensions...) {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}

	sort.Strings(paths)
	return paths, nil
}

// ListSubdirectories returns the names of the directories directly inside dir, sorted.
func ListSubdirectories(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
