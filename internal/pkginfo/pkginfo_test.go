package pkginfo

import (
	"testing"

	"github.com/go-autopkg/autopkg/internal/version"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"glibc", "glibc"},
		{"glibc>=2.27", "glibc"},
		{"glibc<3", "glibc"},
		{"glibc=2.27-1", "glibc"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeName(tt.in); got != tt.want {
			t.Errorf("NormalizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFromRepoDBDirectoryName(t *testing.T) {
	tiny := FromRepoDBDirectoryName("foo-bar-1.0-1")
	if tiny.Name != "foo-bar" {
		t.Errorf("Name = %q, want foo-bar", tiny.Name)
	}
	if tiny.Version.String() != "1.0-1" {
		t.Errorf("Version = %q, want 1.0-1", tiny.Version.String())
	}
}

// TestArtifactFileNameRoundTrip exercises testable property 10: parsing
// an artifact file name and re-formatting with the same arch and
// extension reproduces the original name.
func TestArtifactFileNameRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		file string
		arch string
	}{
		{"simple", "foo-1.0-1-x86_64.pkg.tar.xz", "x86_64"},
		{"with epoch", "foo-2:1.0-1-x86_64.pkg.tar.xz", "x86_64"},
		{"hyphenated name", "gnome-shell-extension-foo-1-1-any.pkg.tar.xz", "any"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tiny, err := FromArtifactFilePath(tt.file)
			if err != nil {
				t.Fatalf("FromArtifactFilePath(%q): %v", tt.file, err)
			}
			got := ArtifactFileName(tiny.Name, tiny.Version, tt.arch)
			if got != tt.file {
				t.Errorf("round trip mismatch: got %q, want %q", got, tt.file)
			}
		})
	}
}

func TestFromArtifactFilePathRejectsGarbage(t *testing.T) {
	if _, err := FromArtifactFilePath("not-a-package.txt"); err == nil {
		t.Fatal("expected an error for a non-artifact file name")
	}
}

func TestPackageInfoDefaultsPkgbase(t *testing.T) {
	info := New("foo", version.New("1-1"), "", nil, nil, nil)
	if info.Pkgbase != "foo" {
		t.Errorf("Pkgbase = %q, want foo (defaulted from Pkgname)", info.Pkgbase)
	}
}

func TestPackageInfoNormalizesDependencyTokens(t *testing.T) {
	info := New("foo", version.New("1-1"), "", []string{"glibc>=2.27"}, []string{"cmake>=3.0"}, []string{"check=1.0"})
	if info.Depends[0] != "glibc" {
		t.Errorf("Depends[0] = %q, want glibc", info.Depends[0])
	}
	if info.Makedepends[0] != "cmake" {
		t.Errorf("Makedepends[0] = %q, want cmake", info.Makedepends[0])
	}
	if info.Checkdepends[0] != "check" {
		t.Errorf("Checkdepends[0] = %q, want check", info.Checkdepends[0])
	}
}
