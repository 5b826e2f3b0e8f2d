package generator

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zip"
)

const mimetypeEntry = "mimetype"

// writeArchive zips the scratch directory into output. Entries are stored
// under the scratch directory's base name. When mimetype is set it is written
// first and uncompressed, as EPUB readers expect.
func writeArchive(output, scratch, mimetype string) error {
	file, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer file.Close()

	zw := zip.NewWriter(file)

	if mimetype != "" {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     mimetypeEntry,
			Method:   zip.Store,
			Modified: time.Now().UTC(),
		})
		if err != nil {
			return fmt.Errorf("write mimetype header: %w", err)
		}
		if _, err := io.WriteString(w, mimetype); err != nil {
			return fmt.Errorf("write mimetype body: %w", err)
		}
	}

	prefix := filepath.Base(scratch)
	err = filepath.WalkDir(scratch, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(scratch, path)
		if err != nil {
			return fmt.Errorf("relative path for %q: %w", path, err)
		}
		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %q: %w", path, err)
		}

		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return fmt.Errorf("header for %q: %w", rel, err)
		}
		header.Name = filepath.ToSlash(filepath.Join(prefix, rel))
		header.Method = zip.Deflate

		w, err := zw.CreateHeader(header)
		if err != nil {
			return fmt.Errorf("write header for %q: %w", rel, err)
		}
		src, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %q: %w", path, err)
		}
		_, err = io.Copy(w, src)
		src.Close()
		if err != nil {
			return fmt.Errorf("copy %q: %w", rel, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("finish archive: %w", err)
	}
	return file.Close()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Close()
}
