// Package pkginfo holds the small, immutable value types describing a
// package's metadata (PackageInfo), its identity-plus-version tuple as
// recorded by the repository (PackageTinyInfo), and the artifact/db
// naming conventions used to round-trip between the two.
package pkginfo

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-autopkg/autopkg/internal/version"
)

// NormalizeName strips any >, <, or = version-constraint suffix from a
// dependency token, e.g. "glibc>=2.27" -> "glibc".
func NormalizeName(token string) string {
	if i := strings.IndexAny(token, "><="); i >= 0 {
		return token[:i]
	}
	return token
}

// NormalizeNames applies NormalizeName to every element of tokens.
func NormalizeNames(tokens []string) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = NormalizeName(t)
	}
	return out
}

// PackageInfo is the subset of PKGBUILD/.SRCINFO fields autopkg cares
// about. Pkgname is matched case-insensitively elsewhere but its
// original casing is always preserved here.
type PackageInfo struct {
	Pkgname      string
	Version      version.Version
	Pkgbase      string
	Depends      []string
	Makedepends  []string
	Checkdepends []string
}

// New constructs a PackageInfo, defaulting Pkgbase to Pkgname when empty.
func New(pkgname string, v version.Version, pkgbase string, depends, makedepends, checkdepends []string) PackageInfo {
	if pkgbase == "" {
		pkgbase = pkgname
	}
	return PackageInfo{
		Pkgname:      pkgname,
		Version:      v,
		Pkgbase:      pkgbase,
		Depends:      NormalizeNames(depends),
		Makedepends:  NormalizeNames(makedepends),
		Checkdepends: NormalizeNames(checkdepends),
	}
}

func (p PackageInfo) String() string {
	return fmt.Sprintf("%s (%s)", p.Pkgname, p.Version)
}

// TinyInfo returns the PackageTinyInfo view of this PackageInfo.
func (p PackageInfo) TinyInfo() PackageTinyInfo {
	return PackageTinyInfo{Name: p.Pkgname, Version: p.Version}
}

// PackageTinyInfo identifies a package by name and version only — what
// the repository database actually records.
type PackageTinyInfo struct {
	Name    string
	Version version.Version
}

func (p PackageTinyInfo) String() string {
	return fmt.Sprintf("%s (%s)", p.Name, p.Version)
}

// FromRepoDBDirectoryName parses a repo-add database member directory
// name of the form "<pkgname>-<pkgver>-<pkgrel>" (no architecture
// component) into a PackageTinyInfo. The last two hyphen-separated
// tokens are the version; everything before that is the name.
func FromRepoDBDirectoryName(dirName string) PackageTinyInfo {
	parts := strings.Split(dirName, "-")
	if len(parts) < 2 {
		return PackageTinyInfo{Name: dirName}
	}
	name := strings.Join(parts[:len(parts)-2], "-")
	ver := strings.Join(parts[len(parts)-2:], "-")
	return PackageTinyInfo{Name: name, Version: version.New(ver)}
}

// artifactNameRe captures pkgname, optional epoch, pkgver, pkgrel, arch
// from a bit-exact artifact file name of the form:
//
//	<pkgname>-(<epoch>:)?<pkgver>-<pkgrel>-<arch>.pkg.tar.xz
var artifactNameRe = regexp.MustCompile(`^(.+)-((?:[0-9]+:)?[a-zA-Z0-9_.@+]+)-([a-zA-Z0-9_.@+]+)-([a-zA-Z0-9_.@+]+)\.pkg\.tar\.xz$`)

// FromArtifactFilePath parses an artifact file's base name into a
// PackageTinyInfo (name + "<epoch:>pkgver-pkgrel" version), discarding
// architecture. Splitting happens from the right: the last token is
// arch.ext, then pkgrel, then pkgver; the remainder is pkgname.
func FromArtifactFilePath(path string) (PackageTinyInfo, error) {
	base := filepath.Base(path)
	m := artifactNameRe.FindStringSubmatch(base)
	if m == nil {
		return PackageTinyInfo{}, fmt.Errorf("pkginfo: %q does not look like a package artifact file name", base)
	}
	name, pkgver, pkgrel := m[1], m[2], m[3]
	return PackageTinyInfo{Name: name, Version: version.New(pkgver + "-" + pkgrel)}, nil
}

// ArtifactFileName formats the bit-exact artifact file name for name,
// pkgver-pkgrel (as produced by FromComponents) and arch.
func ArtifactFileName(name string, v version.Version, arch string) string {
	return fmt.Sprintf("%s-%s-%s.pkg.tar.xz", name, v.String(), arch)
}

// PickArtifactAt finds the unique artifact file for pkgname inside dir,
// matching "<escaped-pkgname>-(<epoch>:)?<pkgver>-<pkgrel>-<arch>.pkg.tar.xz".
// It is an error for zero or more than one file to match.
func PickArtifactAt(dir, pkgname string) (string, error) {
	pattern := regexp.MustCompile(`^` + regexp.QuoteMeta(pkgname) + `-(?:[0-9]+:)?[a-zA-Z0-9_.@+]+-[a-zA-Z0-9_.@+]+-[a-zA-Z0-9_.@+]+\.pkg\.tar\.xz$`)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	var matched []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if pattern.MatchString(e.Name()) {
			matched = append(matched, e.Name())
		}
	}
	if len(matched) != 1 {
		return "", fmt.Errorf("pkginfo: picked %d artifact files for %s at %s, want exactly 1", len(matched), pkgname, dir)
	}
	return matched[0], nil
}
