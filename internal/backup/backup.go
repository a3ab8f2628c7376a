// Package backup archives the tvbridge history database and config file as
// a tar.gz and restores them.
package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/HerbHall/tvbridge/internal/store"
	"github.com/HerbHall/tvbridge/internal/version"
)

// ManifestName is the archive member describing the backup.
const ManifestName = "manifest.json"

// maxMemberSize caps each restored file.
const maxMemberSize = 1 << 30

// ErrExists is returned by Restore when a target file exists and force is off.
var ErrExists = errors.New("file already exists")

// Manifest records what a backup contains.
type Manifest struct {
	CreatedAt time.Time         `json:"created_at"`
	Database  string            `json:"database"`
	Config    string            `json:"config,omitempty"`
	Version   map[string]string `json:"version"`
}

// Backup writes a tar.gz to outputPath holding a consistent snapshot of the
// database at dbPath, the config file at configPath when it exists, and a
// manifest. The snapshot is taken with VACUUM INTO, so a running server
// does not need to stop.
func Backup(ctx context.Context, dbPath, configPath, outputPath string) (*Manifest, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("database file not found: %w", err)
	}

	tmpDir, err := os.MkdirTemp("", "tvbridge-backup-")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	snapshot := filepath.Join(tmpDir, filepath.Base(dbPath))
	if err := snapshotDB(ctx, dbPath, snapshot); err != nil {
		return nil, err
	}

	m := &Manifest{
		CreatedAt: time.Now().UTC(),
		Database:  filepath.Base(dbPath),
		Version:   version.Map(),
	}
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			m.Config = filepath.Base(configPath)
		}
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return nil, fmt.Errorf("creating output file: %w", err)
	}
	if err := writeArchive(out, m, snapshot, configPath); err != nil {
		out.Close()
		os.Remove(outputPath)
		return nil, err
	}
	if err := out.Close(); err != nil {
		return nil, fmt.Errorf("closing output file: %w", err)
	}
	return m, nil
}

func snapshotDB(ctx context.Context, dbPath, dest string) error {
	db, err := store.New(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.BackupTo(ctx, dest)
}

func writeArchive(w io.Writer, m *Manifest, dbSnapshot, configPath string) error {
	gw := gzip.NewWriter(w)
	tw := tar.NewWriter(gw)

	manifest, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	if err := addBytes(tw, ManifestName, manifest, m.CreatedAt); err != nil {
		return fmt.Errorf("adding manifest to archive: %w", err)
	}
	if err := addFile(tw, dbSnapshot, m.Database); err != nil {
		return fmt.Errorf("adding database to archive: %w", err)
	}
	if m.Config != "" {
		if err := addFile(tw, configPath, m.Config); err != nil {
			return fmt.Errorf("adding config to archive: %w", err)
		}
	}

	if err := tw.Close(); err != nil {
		return err
	}
	return gw.Close()
}

func addBytes(tw *tar.Writer, name string, data []byte, mod time.Time) error {
	hdr := &tar.Header{
		Name:    name,
		Mode:    0o644,
		Size:    int64(len(data)),
		ModTime: mod,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := tw.Write(data)
	return err
}

func addFile(tw *tar.Writer, filePath, archiveName string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = archiveName

	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err = io.Copy(tw, f)
	return err
}

// Restore extracts the archive at input into dataDir and returns its
// manifest. Existing files are only replaced when force is set. Members
// with paths are rejected.
func Restore(_ context.Context, input, dataDir string, force bool) (*Manifest, error) {
	f, err := os.Open(input)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	gr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("reading gzip: %w", err)
	}
	defer gr.Close()

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	var m *Manifest
	tr := tar.NewReader(gr)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading archive: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if !safeName(hdr.Name) {
			return nil, fmt.Errorf("unsafe archive member %q", hdr.Name)
		}

		if hdr.Name == ManifestName {
			m = &Manifest{}
			if err := json.NewDecoder(io.LimitReader(tr, 1<<20)).Decode(m); err != nil {
				return nil, fmt.Errorf("decoding manifest: %w", err)
			}
			continue
		}
		if err := extract(tr, filepath.Join(dataDir, hdr.Name), hdr.Size, force); err != nil {
			return nil, err
		}
	}

	if m == nil {
		return nil, fmt.Errorf("archive has no %s", ManifestName)
	}
	return m, nil
}

func safeName(name string) bool {
	return name != "" && name != "." && name != ".." &&
		!strings.ContainsAny(name, `/\`) && filepath.Base(name) == name
}

func extract(r io.Reader, dest string, size int64, force bool) error {
	if size > maxMemberSize {
		return fmt.Errorf("archive member %s too large", filepath.Base(dest))
	}
	if _, err := os.Stat(dest); err == nil && !force {
		return fmt.Errorf("%s: %w (use --force to overwrite)", dest, ErrExists)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".restore-")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, io.LimitReader(r, size)); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", dest, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	// Stale WAL files from the old database must not be replayed onto the
	// restored one.
	for _, suffix := range []string{"-wal", "-shm"} {
		_ = os.Remove(dest + suffix)
	}
	return os.Rename(tmp.Name(), dest)
}
