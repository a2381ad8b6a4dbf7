package executor

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/go-autopkg/autopkg/internal/backend"
	"github.com/go-autopkg/autopkg/internal/pkginfo"
	"github.com/go-autopkg/autopkg/internal/plan"
	"github.com/go-autopkg/autopkg/internal/version"
)

// fakeRepo is a minimal in-memory stand-in for *pkgrepo.Repository,
// used so tests never have to shell out to repo-add/repo-remove.
type fakeRepo struct {
	versions  map[string]version.Version
	removed   []string
	findCalls []string
	addCalls  []string
}

func newFakeRepo(versions map[string]string) *fakeRepo {
	v := make(map[string]version.Version, len(versions))
	for k, s := range versions {
		v[k] = version.New(s)
	}
	return &fakeRepo{versions: v}
}

func (r *fakeRepo) Lookup(pkgname string) (version.Version, bool) {
	v, ok := r.versions[pkgname]
	return v, ok
}

func (r *fakeRepo) Packages() []string {
	names := make([]string, 0, len(r.versions))
	for n := range r.versions {
		names = append(names, n)
	}
	return names
}

func (r *fakeRepo) FindArtifact(pkgname string) (string, error) {
	r.findCalls = append(r.findCalls, pkgname)
	return "/repo/" + pkgname + "-1.0-1-x86_64.pkg.tar.xz", nil
}

func (r *fakeRepo) Add(ctx context.Context, artifactFile string) error {
	r.addCalls = append(r.addCalls, artifactFile)
	return nil
}

func (r *fakeRepo) Remove(ctx context.Context, pkgname string) error {
	r.removed = append(r.removed, pkgname)
	delete(r.versions, pkgname)
	return nil
}

func mustGShellExt(t *testing.T, pkgname string) backend.Buildable {
	t.Helper()
	info := pkginfo.New(pkgname, version.New("1-1"), "", nil, nil, nil)
	return backend.Buildable{
		Kind: backend.KindGShellExt,
		Info: info,
		Ref:  backend.SourceReference{Backend: backend.KindGShellExt, Source: pkgname},
	}
}

func TestRunSkipsPlansWithNothingToBuild(t *testing.T) {
	repo := newFakeRepo(nil)
	plans := []*plan.Plan{
		{
			Ref:            backend.SourceReference{Backend: backend.KindGShellExt, Source: "foo"},
			Representative: mustGShellExt(t, "gnome-shell-extension-foo"),
			Keep:           []string{"gnome-shell-extension-foo"},
		},
	}
	if err := Run(context.Background(), plans, repo, t.TempDir(), "autopkg", ""); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(repo.findCalls) != 0 || len(repo.addCalls) != 0 {
		t.Fatalf("Run touched the repository for a keep-only plan: find=%v add=%v", repo.findCalls, repo.addCalls)
	}
}

func TestAutoremoveDeletesUnneededPackages(t *testing.T) {
	repo := newFakeRepo(map[string]string{
		"foo":       "1.0-1",
		"bar":       "2.0-1",
		"leftover":  "0.1-1",
		"leftover2": "0.2-1",
	})
	plans := []*plan.Plan{
		{Ref: backend.SourceReference{Backend: backend.KindAUR, Source: "foo"}, Build: []string{"foo"}},
		{Ref: backend.SourceReference{Backend: backend.KindAUR, Source: "bar"}, Keep: []string{"bar"}},
	}
	if err := Autoremove(context.Background(), plans, repo); err != nil {
		t.Fatalf("Autoremove: %v", err)
	}
	if diff := cmp.Diff([]string{"foo", "bar"}, repo.Packages(), cmp.Transformer("sort", sortedCopy)); diff != "" {
		t.Errorf("unexpected remaining packages (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"leftover", "leftover2"}, sortedCopy(repo.removed)); diff != "" {
		t.Errorf("unexpected removed set (-want +got):\n%s", diff)
	}
}

func TestAutoremoveNoopWhenAllNeeded(t *testing.T) {
	repo := newFakeRepo(map[string]string{"foo": "1.0-1"})
	plans := []*plan.Plan{
		{Ref: backend.SourceReference{Backend: backend.KindAUR, Source: "foo"}, Keep: []string{"foo"}},
	}
	if err := Autoremove(context.Background(), plans, repo); err != nil {
		t.Fatalf("Autoremove: %v", err)
	}
	if len(repo.removed) != 0 {
		t.Fatalf("Autoremove removed packages it shouldn't have: %v", repo.removed)
	}
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}
