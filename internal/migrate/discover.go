package migrate

import (
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"slices"
	"sort"
	"strings"
)

var fileNamePattern = regexp.MustCompile(`^(\d{14})-([A-Za-z0-9][A-Za-z0-9_.-]*)\.(go|sql)$`)

// File describes one migration file.
type File struct {
	// Path is the file's path within the migrations file system.
	Path string
	ID   string
	Name string
	// Ext is "go" or "sql".
	Ext string
}

func (f File) String() string {
	return f.Path
}

// parseFileName reports whether name is a migration file name.
func parseFileName(name string) (File, bool) {
	if strings.HasSuffix(name, "_test.go") {
		return File{}, false
	}
	m := fileNamePattern.FindStringSubmatch(name)
	if m == nil {
		return File{}, false
	}
	return File{Path: name, ID: m[1], Name: m[2], Ext: m[3]}, true
}

// Discover lists the migration files in dir, sorted by id. Other files are
// ignored.
func Discover(fsys fs.FS, dir string) ([]File, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}

	var files []File
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		f, ok := parseFileName(e.Name())
		if !ok {
			continue
		}
		f.Path = path.Join(dir, e.Name())
		files = append(files, f)
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].ID != files[j].ID {
			return files[i].ID < files[j].ID
		}
		return files[i].Path < files[j].Path
	})
	return files, nil
}

// Pending returns the files whose id is greater than latest's. With no
// latest record every file is pending. files must be sorted by id.
func Pending(files []File, latest *Record) []File {
	if latest == nil {
		return slices.Clone(files)
	}
	i := sort.Search(len(files), func(i int) bool { return files[i].ID > latest.ID })
	return slices.Clone(files[i:])
}
