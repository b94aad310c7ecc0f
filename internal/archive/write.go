package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Create writes an archive at archivePath holding the given top-level entries
// of root. The format follows the archive file extension.
func Create(archivePath, root string, entries []string) (err error) {
	format, err := DetectFormat(archivePath)
	if err != nil {
		return err
	}
	f, err := os.Create(archivePath) // #nosec G304 -- output path chosen by the caller
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	cw, err := compress(format, f)
	if err != nil {
		return err
	}
	tw := tar.NewWriter(cw)

	for _, entry := range entries {
		base := filepath.Join(root, entry)
		walkErr := filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			return addEntry(tw, root, p, d)
		})
		if walkErr != nil {
			return fmt.Errorf("archive %s: %w", entry, walkErr)
		}
	}

	if err := tw.Close(); err != nil {
		return err
	}
	return cw.Close()
}

func addEntry(tw *tar.Writer, root, p string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return err
	}
	link := ""
	if info.Mode()&os.ModeSymlink != 0 {
		if link, err = os.Readlink(p); err != nil {
			return err
		}
	}
	hdr, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return err
	}
	hdr.Name = filepath.ToSlash(rel)
	if info.IsDir() {
		hdr.Name += "/"
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return nil
	}
	in, err := os.Open(p) // #nosec G304 -- walking a caller-provided tree
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()
	_, err = io.Copy(tw, in)
	return err
}
