package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/bodgit/sevenzip"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/bamsammich/moma/internal/errkind"
)

func unpackZip(archivePath, dir string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return corrupt(archivePath, err)
	}
	defer r.Close()

	for _, f := range r.File {
		target, err := entryPath(dir, f.Name)
		if err != nil {
			return corrupt(archivePath, err)
		}
		info := f.FileInfo()
		if info.IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return errkind.IO("extract", target, err)
			}
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return corrupt(archivePath, err)
		}
		err = writeEntry(target, info.Mode(), rc)
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func unpackSevenZip(archivePath, dir string) error {
	r, err := sevenzip.OpenReader(archivePath)
	if err != nil {
		return corrupt(archivePath, err)
	}
	defer r.Close()

	for _, f := range r.File {
		target, err := entryPath(dir, f.Name)
		if err != nil {
			return corrupt(archivePath, err)
		}
		info := f.FileInfo()
		if info.IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return errkind.IO("extract", target, err)
			}
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return corrupt(archivePath, err)
		}
		err = writeEntry(target, info.Mode(), rc)
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func unpackTar(format Format, archivePath, dir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return errkind.IO("extract", archivePath, err)
	}
	defer f.Close()

	var src io.Reader = f
	switch format {
	case FormatTarGzip:
		gz, err := gzip.NewReader(f)
		if err != nil {
			return corrupt(archivePath, err)
		}
		defer gz.Close()
		src = gz
	case FormatTarZstd:
		dec, err := zstd.NewReader(f)
		if err != nil {
			return corrupt(archivePath, err)
		}
		defer dec.Close()
		src = dec
	case FormatTarLZ4:
		src = lz4.NewReader(f)
	case FormatTar:
	default:
		return fmt.Errorf("unpack tar: unexpected format %s", format)
	}

	tr := tar.NewReader(src)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return corrupt(archivePath, err)
		}

		target, err := entryPath(dir, hdr.Name)
		if err != nil {
			return corrupt(archivePath, err)
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return errkind.IO("extract", target, err)
			}
		default:
			mode := hdr.FileInfo().Mode()
			if !mode.IsRegular() {
				continue
			}
			if err := writeEntry(target, mode, tr); err != nil {
				return err
			}
		}
	}
}
