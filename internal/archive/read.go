package archive

import (
	"archive/tar"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/distcache/internal/foundation/errors"
	"git.home.luguber.info/inful/distcache/internal/util/sets"
)

// walk calls fn for every header in the archive at archivePath.
func walk(archivePath string, fn func(hdr *tar.Header, name string, r io.Reader) error) error {
	format, err := DetectFormat(archivePath)
	if err != nil {
		return err
	}
	f, err := os.Open(archivePath) // #nosec G304 -- artifact path owned by the pipeline
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	stream, err := decompress(format, f)
	if err != nil {
		return fmt.Errorf("open %s stream: %w", format, err)
	}
	defer func() { _ = stream.Close() }()

	tr := tar.NewReader(stream)
	for {
		hdr, err := tr.Next()
		if stderrors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read archive: %w", err)
		}
		name, ok, err := cleanName(hdr.Name)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := fn(hdr, name, tr); err != nil {
			return err
		}
	}
}

// cleanName normalizes an entry name. ok is false for the archive root itself.
func cleanName(raw string) (string, bool, error) {
	name := strings.TrimPrefix(path.Clean("/"+strings.ReplaceAll(raw, "\\", "/")), "/")
	if strings.HasPrefix(raw, "/") || hasDotDot(raw) {
		return "", false, fmt.Errorf("unsafe archive entry: %q", raw)
	}
	if name == "" || name == "." {
		return "", false, nil
	}
	return name, true, nil
}

func hasDotDot(raw string) bool {
	for _, part := range strings.Split(strings.ReplaceAll(raw, "\\", "/"), "/") {
		if part == ".." {
			return true
		}
	}
	return false
}

func topLevel(name string) string {
	if i := strings.IndexByte(name, '/'); i >= 0 {
		return name[:i]
	}
	return name
}

func underGit(name string) bool {
	for _, part := range strings.Split(name, "/") {
		if part == ".git" {
			return true
		}
	}
	return false
}

// Inspect returns the sorted top-level entry names of the archive.
func Inspect(archivePath string) ([]string, error) {
	seen := sets.New[string]()
	err := walk(archivePath, func(_ *tar.Header, name string, _ io.Reader) error {
		seen.Add(topLevel(name))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sets.Sorted(seen), nil
}

// Verify fails with a packaging error when any required top-level entry is missing.
func Verify(archivePath string, required []string) error {
	present, err := Inspect(archivePath)
	if err != nil {
		return errors.PackagingError("artifact is not a readable archive").
			WithCause(err).
			WithContext("path", archivePath).
			Build()
	}
	if missing := sets.New(present...).Missing(required); len(missing) > 0 {
		return errors.PackagingError("artifact is missing required entries: "+strings.Join(missing, ", ")).
			WithContext("path", archivePath).
			WithContext("missing", missing).
			Build()
	}
	return nil
}

// Extract writes the entries whose top-level name is in include into dest and
// returns the top-level names actually extracted.
func Extract(archivePath, dest string, include []string) ([]string, error) {
	want := sets.New(include...)
	destAbs, err := filepath.Abs(dest)
	if err != nil {
		return nil, err
	}
	got := sets.New[string]()

	err = walk(archivePath, func(hdr *tar.Header, name string, r io.Reader) error {
		top := topLevel(name)
		if !want.Has(top) || underGit(name) {
			return nil
		}
		target := filepath.Join(destAbs, filepath.FromSlash(name))
		if !within(destAbs, target) {
			return fmt.Errorf("unsafe archive entry: %q", hdr.Name)
		}
		if err := noLinkedParents(destAbs, target); err != nil {
			return fmt.Errorf("unsafe archive entry %q: %w", hdr.Name, err)
		}
		if err := writeEntry(hdr, destAbs, target, r); err != nil {
			return err
		}
		got.Add(top)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return sets.Sorted(got), nil
}

func writeEntry(hdr *tar.Header, destAbs, target string, r io.Reader) error {
	switch hdr.Typeflag {
	case tar.TypeDir:
		return os.MkdirAll(target, 0o750)
	case tar.TypeReg:
		if fi, err := os.Lstat(target); err == nil && fi.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("archive entry %q would overwrite a symlink", hdr.Name)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
			return err
		}
		mode := os.FileMode(0o644)
		if hdr.Mode&0o111 != 0 {
			mode = 0o755
		}
		out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode) // #nosec G304 -- target checked against dest
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, r); err != nil { // #nosec G110 -- artifact produced by our own build stage
			_ = out.Close()
			return err
		}
		return out.Close()
	case tar.TypeSymlink:
		linkTarget, ok := resolveLink(destAbs, filepath.Dir(target), hdr.Linkname)
		if !ok || linksIntoGit(destAbs, linkTarget) {
			return fmt.Errorf("unsafe symlink in archive: %q -> %q", hdr.Name, hdr.Linkname)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
			return err
		}
		return os.Symlink(hdr.Linkname, target)
	default:
		// hard links, devices and fifos have no place in a distribution tree
		return nil
	}
}

// noLinkedParents fails when any directory between root and target is a
// symlink, which would let later entries write through an earlier link.
func noLinkedParents(root, target string) error {
	rel, err := filepath.Rel(root, filepath.Dir(target))
	if err != nil || rel == "." {
		return err
	}
	cur := root
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		cur = filepath.Join(cur, part)
		fi, err := os.Lstat(cur)
		if os.IsNotExist(err) {
			return nil
		}
		if err != nil {
			return err
		}
		if fi.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("path passes through symlink %q", filepath.ToSlash(strings.TrimPrefix(cur, root+string(filepath.Separator))))
		}
	}
	return nil
}

// resolveLink walks linkname from dir one component at a time. A ".." taken
// from a directory that is itself a symlink is refused, since its real parent
// differs from the lexical one.
func resolveLink(root, dir, linkname string) (string, bool) {
	if linkname == "" || filepath.IsAbs(linkname) || strings.HasPrefix(linkname, "/") {
		return "", false
	}
	cur := dir
	for _, part := range strings.Split(filepath.ToSlash(linkname), "/") {
		switch part {
		case "", ".":
			continue
		case "..":
			if fi, err := os.Lstat(cur); err == nil && fi.Mode()&os.ModeSymlink != 0 {
				return "", false
			}
			cur = filepath.Dir(cur)
		default:
			cur = filepath.Join(cur, part)
		}
		if !within(root, cur) {
			return "", false
		}
	}
	return cur, true
}

// linksIntoGit reports whether a link resolving to p would expose the
// repository metadata under root.
func linksIntoGit(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return true
	}
	return rel == "." || underGit(filepath.ToSlash(rel))
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
