// Package pkgrepo implements the on-disk, pacman-compatible package
// repository: a database archive, a set of artifact files, optional
// detached signatures, and an in-memory pkgname -> PackageTinyInfo
// index rehydrated from the database at open time.
package pkgrepo

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/gzip"

	"github.com/go-autopkg/autopkg/internal/pkginfo"
	"github.com/go-autopkg/autopkg/internal/run"
	"github.com/go-autopkg/autopkg/internal/version"
)

// Repository is a named, directory-backed collection of binary
// package artifacts plus their repo-add/repo-remove-maintained
// database. All mutating methods keep the in-memory index in
// lockstep with on-disk state.
type Repository struct {
	Name      string
	Dir       string
	SignKey   string // GPG key id for detached signing; empty disables signing
	Sudo      bool   // true when db/artifact writes require privilege elevation

	mu      sync.Mutex
	byName  map[string]pkginfo.PackageTinyInfo
}

func (r *Repository) dbPath() string {
	return filepath.Join(r.Dir, r.Name+".db.tar.gz")
}

// Open loads (creating if necessary) the repository named name at
// dir. If the database archive does not yet exist, it is created by
// invoking repo-add with no member packages; the in-memory index is
// then populated from the archive's directory entries.
func Open(ctx context.Context, name, dir string, signKey string, sudo bool) (*Repository, error) {
	r := &Repository{Name: name, Dir: dir, SignKey: signKey, Sudo: sudo, byName: make(map[string]pkginfo.PackageTinyInfo)}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("pkgrepo: creating %s: %w", dir, err)
	}
	if _, err := os.Stat(r.dbPath()); os.IsNotExist(err) {
		if _, err := run.Run(ctx, []string{"repo-add", r.dbPath()}, run.Options{Sudo: sudo}); err != nil {
			return nil, fmt.Errorf("pkgrepo: initializing %s: %w", r.dbPath(), err)
		}
	} else if err != nil {
		return nil, err
	}
	if err := r.reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// reload rebuilds the in-memory index by reading every directory
// member's name out of the database archive.
func (r *Repository) reload() error {
	f, err := os.Open(r.dbPath())
	if err != nil {
		return fmt.Errorf("pkgrepo: opening %s: %w", r.dbPath(), err)
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("pkgrepo: decompressing %s: %w", r.dbPath(), err)
	}
	defer zr.Close()

	index := make(map[string]pkginfo.PackageTinyInfo)
	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("pkgrepo: reading %s: %w", r.dbPath(), err)
		}
		if hdr.Typeflag != tar.TypeDir {
			continue
		}
		name := filepath.Clean(hdr.Name)
		if name == "." {
			continue
		}
		tiny := pkginfo.FromRepoDBDirectoryName(name)
		index[tiny.Name] = tiny
	}

	r.mu.Lock()
	r.byName = index
	r.mu.Unlock()
	return nil
}

// Lookup implements plan.RepositoryVersions.
func (r *Repository) Lookup(pkgname string) (version.Version, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tiny, ok := r.byName[pkgname]
	return tiny.Version, ok
}

// Packages returns every pkgname currently held by the repository.
func (r *Repository) Packages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	return names
}

// FindArtifact locates the unique artifact file for pkgname.
func (r *Repository) FindArtifact(pkgname string) (string, error) {
	name, err := pkginfo.PickArtifactAt(r.Dir, pkgname)
	if err != nil {
		return "", err
	}
	return filepath.Join(r.Dir, name), nil
}

// Add publishes artifactFile into the repository. If the repository
// already holds the exact (name, version) parsed from artifactFile,
// Add is a no-op: this makes Add idempotent under repeated
// invocations with the same artifact.
func (r *Repository) Add(ctx context.Context, artifactFile string) error {
	tiny, err := pkginfo.FromArtifactFilePath(artifactFile)
	if err != nil {
		return err
	}

	r.mu.Lock()
	existing, ok := r.byName[tiny.Name]
	r.mu.Unlock()
	if ok && existing.Version.String() == tiny.Version.String() {
		return nil
	}

	dest := filepath.Join(r.Dir, filepath.Base(artifactFile))
	if err := copyFile(artifactFile, dest); err != nil {
		return fmt.Errorf("pkgrepo: copying %s: %w", artifactFile, err)
	}

	if r.SignKey != "" {
		if _, err := run.Run(ctx, []string{"gpg", "--batch", "--yes", "--detach-sign", "--local-user", r.SignKey, dest}, run.Options{}); err != nil {
			return fmt.Errorf("pkgrepo: signing %s: %w", dest, err)
		}
	}

	args := []string{"repo-add", "-R"}
	if r.SignKey != "" {
		args = append(args, "--sign", "--key", r.SignKey)
	}
	args = append(args, r.dbPath(), dest)
	if _, err := run.Run(ctx, args, run.Options{Sudo: r.Sudo}); err != nil {
		return fmt.Errorf("pkgrepo: repo-add %s: %w", dest, err)
	}

	r.mu.Lock()
	r.byName[tiny.Name] = tiny
	r.mu.Unlock()
	return nil
}

// Remove deletes pkgname's artifact (and signature, if any) and drops
// it from the database and the in-memory index.
func (r *Repository) Remove(ctx context.Context, pkgname string) error {
	artifact, err := r.FindArtifact(pkgname)
	if err != nil {
		return err
	}
	if _, err := run.Run(ctx, []string{"repo-remove", r.dbPath(), pkgname}, run.Options{Sudo: r.Sudo}); err != nil {
		return fmt.Errorf("pkgrepo: repo-remove %s: %w", pkgname, err)
	}
	if err := os.Remove(artifact); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("pkgrepo: removing %s: %w", artifact, err)
	}
	if err := os.Remove(artifact + ".sig"); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("pkgrepo: removing %s: %w", artifact+".sig", err)
	}
	r.mu.Lock()
	delete(r.byName, pkgname)
	r.mu.Unlock()
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
