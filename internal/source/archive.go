package source

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pacc-dev/pacc/internal/paccerr"
)

// Extract unpacks the archive at archivePath into a fresh temp directory
// and returns it. On any unsafe entry the directory is removed before the
// error is returned, so a rejection leaves nothing behind.
func Extract(archivePath, suffix string) (string, error) {
	dir, err := os.MkdirTemp("", "pacc-extract-*")
	if err != nil {
		return "", paccerr.Filesystem("io", "creating extraction directory").WithCause(err)
	}

	switch suffix {
	case ".zip":
		err = extractZip(archivePath, dir)
	case ".tar":
		err = extractTarFile(archivePath, dir, compressionNone)
	case ".tar.gz", ".tgz":
		err = extractTarFile(archivePath, dir, compressionGzip)
	case ".tar.bz2", ".tbz2":
		err = extractTarFile(archivePath, dir, compressionBzip2)
	default:
		err = paccerr.Source("unrecognized", "unsupported archive format %q", suffix)
	}
	if err != nil {
		os.RemoveAll(dir)
		return "", err
	}
	return dir, nil
}

type compression int

const (
	compressionNone compression = iota
	compressionGzip
	compressionBzip2
)

// safeEntryPath validates an archive entry name and returns its absolute
// destination under root.
func safeEntryPath(root, name string) (string, error) {
	if name == "" {
		return "", paccerr.Security("unsafe_archive_entry", "empty entry name")
	}
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return "", paccerr.Security("path_traversal", "absolute entry path %q", name)
	}
	clean := filepath.Clean(filepath.FromSlash(name))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", paccerr.Security("path_traversal", "entry %q escapes the archive root", name)
	}
	dest := filepath.Join(root, clean)
	if !strings.HasPrefix(dest, root+string(filepath.Separator)) && dest != root {
		return "", paccerr.Security("path_traversal", "entry %q escapes the archive root", name)
	}
	return dest, nil
}

// checkSymlinkTarget rejects link targets that resolve outside root.
func checkSymlinkTarget(root, dest, target string) error {
	if filepath.IsAbs(target) {
		return paccerr.Security("unsafe_archive_entry", "absolute symlink target %q", target)
	}
	resolved := filepath.Clean(filepath.Join(filepath.Dir(dest), target))
	if !strings.HasPrefix(resolved, root+string(filepath.Separator)) && resolved != root {
		return paccerr.Security("unsafe_archive_entry", "symlink target %q escapes the archive root", target)
	}
	return nil
}

func extractZip(archivePath, root string) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return paccerr.Source("unrecognized", "opening zip archive").WithCause(err)
	}
	defer reader.Close()

	for _, entry := range reader.File {
		dest, err := safeEntryPath(root, entry.Name)
		if err != nil {
			return err
		}
		mode := entry.Mode()
		switch {
		case mode.IsDir():
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return paccerr.Filesystem("io", "creating %s", dest).WithCause(err)
			}
		case mode&os.ModeSymlink != 0:
			target, err := readZipSymlink(entry)
			if err != nil {
				return err
			}
			if err := checkSymlinkTarget(root, dest, target); err != nil {
				return err
			}
			if err := writeSymlink(dest, target); err != nil {
				return err
			}
		default:
			if err := writeZipFile(entry, dest); err != nil {
				return err
			}
		}
	}
	return nil
}

func readZipSymlink(entry *zip.File) (string, error) {
	rc, err := entry.Open()
	if err != nil {
		return "", paccerr.Source("unrecognized", "reading symlink entry %s", entry.Name).WithCause(err)
	}
	defer rc.Close()
	target, err := io.ReadAll(io.LimitReader(rc, 4096))
	if err != nil {
		return "", paccerr.Source("unrecognized", "reading symlink entry %s", entry.Name).WithCause(err)
	}
	return string(target), nil
}

func writeZipFile(entry *zip.File, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return paccerr.Filesystem("io", "creating %s", filepath.Dir(dest)).WithCause(err)
	}
	rc, err := entry.Open()
	if err != nil {
		return paccerr.Source("unrecognized", "opening entry %s", entry.Name).WithCause(err)
	}
	defer rc.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, entry.Mode().Perm())
	if err != nil {
		return paccerr.Filesystem("io", "creating %s", dest).WithCause(err)
	}
	_, err = io.Copy(out, rc)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return paccerr.Filesystem("io", "writing %s", dest).WithCause(err)
	}
	return nil
}

func extractTarFile(archivePath, root string, comp compression) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return paccerr.Filesystem("io", "opening %s", archivePath).WithCause(err)
	}
	defer f.Close()

	var stream io.Reader = f
	switch comp {
	case compressionGzip:
		gz, err := gzip.NewReader(f)
		if err != nil {
			return paccerr.Source("unrecognized", "opening gzip stream").WithCause(err)
		}
		defer gz.Close()
		stream = gz
	case compressionBzip2:
		stream = bzip2.NewReader(f)
	}
	return extractTar(stream, root)
}

func extractTar(stream io.Reader, root string) error {
	tr := tar.NewReader(stream)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return paccerr.Source("unrecognized", "reading tar stream").WithCause(err)
		}

		dest, err := safeEntryPath(root, header.Name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return paccerr.Filesystem("io", "creating %s", dest).WithCause(err)
			}
		case tar.TypeSymlink:
			if err := checkSymlinkTarget(root, dest, header.Linkname); err != nil {
				return err
			}
			if err := writeSymlink(dest, header.Linkname); err != nil {
				return err
			}
		case tar.TypeLink:
			// Hard links must point inside the archive too.
			if _, err := safeEntryPath(root, header.Linkname); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
				return paccerr.Filesystem("io", "creating %s", filepath.Dir(dest)).WithCause(err)
			}
			if err := os.Link(filepath.Join(root, filepath.FromSlash(header.Linkname)), dest); err != nil {
				return paccerr.Filesystem("io", "linking %s", dest).WithCause(err)
			}
		case tar.TypeReg:
			if err := writeTarFile(tr, header, dest); err != nil {
				return err
			}
		default:
			// Devices, FIFOs and the like never belong in an extension.
			return paccerr.Security("unsafe_archive_entry",
				"unsupported entry type %d for %q", header.Typeflag, header.Name)
		}
	}
}

func writeTarFile(tr *tar.Reader, header *tar.Header, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return paccerr.Filesystem("io", "creating %s", filepath.Dir(dest)).WithCause(err)
	}
	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, header.FileInfo().Mode().Perm())
	if err != nil {
		return paccerr.Filesystem("io", "creating %s", dest).WithCause(err)
	}
	_, err = io.Copy(out, tr)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return paccerr.Filesystem("io", "writing %s", dest).WithCause(err)
	}
	return nil
}

func writeSymlink(dest, target string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return paccerr.Filesystem("io", "creating %s", filepath.Dir(dest)).WithCause(err)
	}
	if err := os.Symlink(target, dest); err != nil {
		return paccerr.Filesystem("io", "creating symlink %s", dest).WithCause(err)
	}
	return nil
}
