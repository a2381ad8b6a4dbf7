package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"

	"github.com/go-autopkg/autopkg/internal/pkginfo"
	"github.com/go-autopkg/autopkg/internal/run"
	"github.com/go-autopkg/autopkg/internal/version"
)

const (
	aurIndexURL = "https://aur.archlinux.org/packages.gz"
	aurRPCURL   = "https://aur.archlinux.org/rpc/?v=5&type=info"
	aurGitBase  = "https://aur.archlinux.org/"
)

// AUR is the Arch User Repository backend. The package index is
// fetched and decompressed once per process; individual packages are
// then resolved in a single batched RPC call per round and memoized by
// pkgname.
type AUR struct {
	httpClient *http.Client

	once        sync.Once
	onceErr     error
	indexNames  map[string]bool
	mu          sync.Mutex
	cache       map[string]Buildable
}

// NewAUR constructs an AUR backend using http.DefaultClient.
func NewAUR() *AUR {
	return &AUR{httpClient: http.DefaultClient, cache: make(map[string]Buildable)}
}

func (a *AUR) Kind() Kind { return KindAUR }

func (a *AUR) ensureIndex(ctx context.Context) error {
	a.once.Do(func() {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, aurIndexURL, nil)
		if err != nil {
			a.onceErr = err
			return
		}
		resp, err := a.httpClient.Do(req)
		if err != nil {
			a.onceErr = fmt.Errorf("aur: fetching package index: %w", err)
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			a.onceErr = fmt.Errorf("aur: package index: HTTP status %v", resp.Status)
			return
		}
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			a.onceErr = fmt.Errorf("aur: decompressing package index: %w", err)
			return
		}
		defer zr.Close()
		b, err := io.ReadAll(zr)
		if err != nil {
			a.onceErr = fmt.Errorf("aur: reading package index: %w", err)
			return
		}
		names := make(map[string]bool)
		for _, line := range strings.Split(string(b), "\n") {
			if len(line) == 0 || line[0] == '#' {
				continue
			}
			names[line] = true
		}
		a.indexNames = names
	})
	return a.onceErr
}

type aurRPCResponse struct {
	Results []aurRPCResult `json:"results"`
}

type aurRPCResult struct {
	Name         string
	PackageBase  string
	Version      string
	Depends      []string
	MakeDepends  []string
	CheckDepends []string
}

// Resolve implements Backend.
func (a *AUR) Resolve(ctx context.Context, names []string) ([]Buildable, error) {
	if err := a.ensureIndex(ctx); err != nil {
		return nil, err
	}

	a.mu.Lock()
	var cached []Buildable
	var query []string
	for _, name := range names {
		if b, ok := a.cache[name]; ok {
			cached = append(cached, b)
			continue
		}
		if a.indexNames[name] {
			query = append(query, name)
		}
	}
	a.mu.Unlock()

	if len(query) == 0 {
		return cached, nil
	}

	url := aurRPCURL
	for _, name := range query {
		url += "&arg[]=" + name
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("aur: rpc: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("aur: rpc: HTTP status %v", resp.Status)
	}
	var parsed aurRPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("aur: rpc: decoding response: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, r := range parsed.Results {
		info := pkginfo.New(r.Name, version.New(r.Version), r.PackageBase, r.Depends, r.MakeDepends, r.CheckDepends)
		b := Buildable{
			Kind: KindAUR,
			Info: info,
			Ref:  SourceReference{Backend: KindAUR, Source: info.Pkgbase},
		}
		a.cache[r.Name] = b
		cached = append(cached, b)
	}
	return cached, nil
}

func writeAURPKGBUILD(ctx context.Context, b Buildable, ws string) (string, error) {
	giturl := aurGitBase + b.Info.Pkgbase + ".git"
	if _, err := run.Run(ctx, []string{"git", "clone", "--depth", "1", giturl, ws}, run.Options{}); err != nil {
		return "", fmt.Errorf("aur: cloning %s: %w", giturl, err)
	}
	return ws, nil
}
