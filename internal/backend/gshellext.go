package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-autopkg/autopkg/internal/pkginfo"
	"github.com/go-autopkg/autopkg/internal/version"
)

const (
	gshellextPrefix  = "gnome-shell-extension-"
	gshellextPkgrel  = "-1"
	gshellextInfoURL = "https://extensions.gnome.org/extension-info/"
	gshellextBaseURL = "https://extensions.gnome.org"
)

// gshellextPKGBUILDTemplate is the fixed recipe generated for every GNOME Shell
// extension package. It installs schemas and locale data alongside the
// extension itself rather than stripping them, so extensions that ship
// GSettings schemas or translations keep working after packaging.
const gshellextPKGBUILDTemplate = `
pkgname='%s'
pkgver=%d
pkgrel=1
pkgdesc='%s'
arch=('any')
url='https://extensions.gnome.org%s'
license=('custom')
depends=('gnome-shell')
source=('https://extensions.gnome.org/download-extension/%s.shell-extension.zip?version_tag=%d')
sha256sums=('SKIP')

package() {
  extension_uuid='%s'
  symlink_name='%s.shell-extension.zip?version_tag=%d'
  rm -f "$symlink_name"
  install -d "${pkgdir}/usr/share/gnome-shell/extensions/${extension_uuid}"
  [[ -d schemas ]] && find schemas -name '*.xml' -exec install -Dm644 -t "$pkgdir/usr/share/glib-2.0/schemas/" '{}' +
  [[ -d locale ]] && cp -af locale "${pkgdir}/usr/share/locale/"
  cp -af * "${pkgdir}/usr/share/gnome-shell/extensions/${extension_uuid}"
  find "$pkgdir" -type d -exec chmod 755 {} \;
  find "$pkgdir" -type f -exec chmod 644 {} \;
}
`

// GShellExt is the GNOME Shell extension registry backend. It only
// answers names with the "gnome-shell-extension-" prefix; the
// remainder of the name is treated as the extension UUID.
type GShellExt struct {
	httpClient *http.Client

	mu    sync.Mutex
	cache map[string]Buildable
}

// NewGShellExt constructs a GShellExt backend using http.DefaultClient.
func NewGShellExt() *GShellExt {
	return &GShellExt{httpClient: http.DefaultClient, cache: make(map[string]Buildable)}
}

func (g *GShellExt) Kind() Kind { return KindGShellExt }

type gshellextVersionPair struct {
	Version int `json:"version"`
	Pk      int `json:"pk"`
}

type gshellextInfoResponse struct {
	ShellVersionMap map[string]gshellextVersionPair `json:"shell_version_map"`
	Description     string                          `json:"description"`
	Link            string                          `json:"link"`
}

func (g *GShellExt) Resolve(ctx context.Context, names []string) ([]Buildable, error) {
	var out []Buildable
	for _, name := range names {
		if !strings.HasPrefix(name, gshellextPrefix) {
			continue
		}
		uuid := strings.TrimPrefix(name, gshellextPrefix)

		g.mu.Lock()
		if b, ok := g.cache[uuid]; ok {
			g.mu.Unlock()
			out = append(out, b)
			continue
		}
		g.mu.Unlock()

		b, err := g.fetch(ctx, uuid)
		if err != nil {
			continue // per-extension fetch failures are skipped silently
		}
		g.mu.Lock()
		g.cache[uuid] = b
		g.mu.Unlock()
		out = append(out, b)
	}
	return out, nil
}

type errHTTPNotFound struct{ url string }

func (e errHTTPNotFound) Error() string { return fmt.Sprintf("%s: HTTP status 404", e.url) }

func isHTTPNotFound(err error) bool {
	_, ok := err.(errHTTPNotFound)
	return ok
}

func (g *GShellExt) fetch(ctx context.Context, uuid string) (Buildable, error) {
	u := gshellextInfoURL + "?uuid=" + url.QueryEscape(uuid)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Buildable{}, err
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return Buildable{}, fmt.Errorf("gshellext: %s: %w", uuid, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return Buildable{}, errHTTPNotFound{url: u}
	}
	if resp.StatusCode != http.StatusOK {
		return Buildable{}, fmt.Errorf("gshellext: %s: HTTP status %v", uuid, resp.Status)
	}
	var parsed gshellextInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Buildable{}, fmt.Errorf("gshellext: %s: decoding response: %w", uuid, err)
	}
	if len(parsed.ShellVersionMap) == 0 {
		return Buildable{}, fmt.Errorf("gshellext: %s: no shell_version_map entries", uuid)
	}
	var best gshellextVersionPair
	first := true
	for _, pair := range parsed.ShellVersionMap {
		if first || pair.Version > best.Version || (pair.Version == best.Version && pair.Pk > best.Pk) {
			best = pair
			first = false
		}
	}
	escapedDescription := strings.ReplaceAll(parsed.Description, "'", `'"'"'`)
	pkgname := gshellextPrefix + strings.ToLower(uuid)
	v := version.New(fmt.Sprintf("%d%s", best.Version, gshellextPkgrel))
	info := pkginfo.New(pkgname, v, "", nil, nil, nil)
	return Buildable{
		Kind:         KindGShellExt,
		Info:         info,
		Ref:          SourceReference{Backend: KindGShellExt, Source: uuid},
		UUID:         uuid,
		ShellVersion: best.Version,
		VersionTag:   best.Pk,
		Description:  escapedDescription,
		Link:         parsed.Link,
	}, nil
}

func writeGShellExtPKGBUILD(b Buildable, ws string) (string, error) {
	pkgbuild := fmt.Sprintf(gshellextPKGBUILDTemplate,
		b.Info.Pkgname, b.ShellVersion, b.Description, b.Link,
		b.UUID, b.VersionTag, b.UUID, b.UUID, b.VersionTag)
	if err := os.WriteFile(filepath.Join(ws, "PKGBUILD"), []byte(pkgbuild), 0o644); err != nil {
		return "", fmt.Errorf("gshellext: writing PKGBUILD: %w", err)
	}
	return ws, nil
}
