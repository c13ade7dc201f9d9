package store

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"routerwatch/internal/model"
)

// ArchiveMonth compresses logs/<device>/<month>/ into logs/<device>/<month>.tar.gz and
// removes the directory. Entries inside the archive are rooted at "<month>/".
func (s *Store) ArchiveMonth(device, month string) (string, error) {
	dir := s.MonthDir(device, month)
	archive := s.ArchivePath(device, month)

	unlockDir := s.lockPath(s.SummaryPath(device, month))
	defer unlockDir()
	unlockArchive := s.lockPath(archive)
	defer unlockArchive()

	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return archive, fmt.Errorf("%w: %s", ErrNothingToArchive, dir)
		}
		return archive, fmt.Errorf("stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return archive, fmt.Errorf("%s is not a directory", dir)
	}

	tmp, err := os.CreateTemp(filepath.Dir(archive), "."+filepath.Base(archive)+".tmp-*")
	if err != nil {
		return archive, fmt.Errorf("create temporary archive: %w", err)
	}
	tmpPath := tmp.Name()

	if err := writeTarGz(tmp, dir, month); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return archive, err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return archive, fmt.Errorf("sync archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return archive, fmt.Errorf("close archive: %w", err)
	}
	if err := os.Chmod(tmpPath, filePerms); err != nil {
		_ = os.Remove(tmpPath)
		return archive, fmt.Errorf("chmod archive: %w", err)
	}
	if err := os.Rename(tmpPath, archive); err != nil {
		_ = os.Remove(tmpPath)
		return archive, fmt.Errorf("replace %s: %w", archive, err)
	}
	if err := os.RemoveAll(dir); err != nil {
		return archive, fmt.Errorf("remove archived directory %s: %w", dir, err)
	}
	return archive, nil
}

func writeTarGz(w io.Writer, dir, base string) error {
	gzw := gzip.NewWriter(w)
	tw := tar.NewWriter(gzw)

	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		name := path.Join(base, filepath.ToSlash(rel))
		info, err := d.Info()
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = name
		if d.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		_, err = io.Copy(tw, f)
		_ = f.Close()
		return err
	})
	if err != nil {
		return fmt.Errorf("archive %s: %w", dir, err)
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("close tar: %w", err)
	}
	if err := gzw.Close(); err != nil {
		return fmt.Errorf("close gzip: %w", err)
	}
	return nil
}

func readArchivedSummaries(archive string, onBadLine func(int, error)) ([]model.DailySummaryRecord, error) {
	f, err := os.Open(archive)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gzr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("open gzip %s: %w", archive, err)
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read tar %s: %w", archive, err)
		}
		if hdr.Typeflag != tar.TypeReg || !strings.HasSuffix(hdr.Name, "/"+summaryFileName) {
			continue
		}
		return decodeSummaries(tr, onBadLine)
	}
}
