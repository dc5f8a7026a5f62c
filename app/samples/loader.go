// Package samples loads preset training documents from a directory of text files and
// keeps the model in sync with them. Each file provides one category named after the
// file base, with one document per line. The watcher rebuilds the model whenever the
// files change on disk.
package samples

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-pkgz/fileutils"
	"github.com/hashicorp/go-multierror"

	"github.com/umputun/docclass/lib/classifier"
)

// Loader reads preset samples from Dir. Files with extensions other than .txt are
// skipped, as are blank lines and lines starting with #.
type Loader struct {
	Dir string
}

// Load trains the classifier with every document found in the directory and returns
// the number of documents learned. Per-file failures don't stop the load; they are
// accumulated and returned as a single error after all readable files are applied.
func (l *Loader) Load(c *classifier.Classifier) (int, error) {
	files, err := fileutils.ListFiles(l.Dir)
	if err != nil {
		return 0, fmt.Errorf("failed to list samples in %s: %w", l.Dir, err)
	}

	count := 0
	var merr *multierror.Error
	for _, file := range files {
		if filepath.Ext(file) != ".txt" {
			continue
		}
		n, e := l.loadFile(c, file)
		if e != nil {
			merr = multierror.Append(merr, e)
			continue
		}
		count += n
	}
	return count, merr.ErrorOrNil()
}

// loadFile trains one category from a single file, category name is the file base
// without extension.
func (l *Loader) loadFile(c *classifier.Classifier, path string) (int, error) {
	category := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if category == "" {
		return 0, fmt.Errorf("can't get category from file name %q", path)
	}

	f, err := os.Open(path) //nolint:gosec // path comes from the configured samples dir
	if err != nil {
		return 0, fmt.Errorf("failed to open samples file %s: %w", path, err)
	}
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		c.Learn(line, category)
		count++
	}
	if err := scanner.Err(); err != nil {
		return count, fmt.Errorf("failed to read samples file %s: %w", path, err)
	}
	return count, nil
}
