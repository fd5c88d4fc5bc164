// Package sources enumerates the translation units of a component.
//
// Directory listings come back in an order that depends on the operating
// system and filesystem. Every list returned here is sorted so the same source
// tree yields the same sequence of translation units, and therefore the same
// archives, on every machine.
package sources

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// List returns the regular files in dir whose extension is ext, sorted
// lexicographically. ext may be given with or without the leading dot.
// Subdirectories are not descended into.
func List(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	ext = normalizeExt(ext)

	var files []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if filepath.Ext(e.Name()) != ext {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// ListAll lists every directory in dirs and concatenates the results in the
// order the directories are given.
func ListAll(dirs []string, ext string) ([]string, error) {
	var all []string
	for _, dir := range dirs {
		files, err := List(dir, ext)
		if err != nil {
			return nil, err
		}
		all = append(all, files...)
	}
	return all, nil
}

func normalizeExt(ext string) string {
	if ext == "" || strings.HasPrefix(ext, ".") {
		return ext
	}
	return "." + ext
}
