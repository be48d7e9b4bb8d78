package summary

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// Collect recursively parses every summary.html below root. Files that
// cannot be attributed to a single run are logged and skipped; format
// errors abort the scan. The returned device table is finalized.
func Collect(log logrus.FieldLogger, root string, opts ParseOptions) (*Collection, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("folder not found: %w", err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("folder not found: %s is not a directory", root)
	}

	devices := NewDeviceTable()
	parser := NewParser(log, opts, devices)
	runs := make([]*Run, 0, 64)

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() || d.Name() != SummaryFile {
			return nil
		}

		run, err := parser.Parse(path)
		if err != nil {
			if IsSkippable(err) {
				log.WithError(err).WithField("file", path).Warn("Ignoring summary")

				return nil
			}

			return err
		}

		runs = append(runs, run)

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}

	devices.Finalize()

	log.WithFields(logrus.Fields{
		"root":    root,
		"runs":    len(runs),
		"devices": devices.Len(),
	}).Debug("Scan completed")

	return &Collection{
		Root:    root,
		Runs:    runs,
		Devices: devices,
		Options: opts,
	}, nil
}
