package webrequest

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"gitlab.com/kittcore/kitt"
)

// AllURLs matches every url with a supported scheme
const AllURLs = "<all_urls>"

var globSchemes = []string{"http", "https", "ws", "wss", "ftp", "file"}

// ChromeGlob is a chrome extension match pattern, <scheme>://<host><path>
type ChromeGlob struct {
	Pattern string
	all     bool
	schemes []string
	host    *regexp.Regexp
	path    *regexp.Regexp
}

// NewChromeGlob compiles a match pattern
func NewChromeGlob(pattern string) (*ChromeGlob, error) {
	g := &ChromeGlob{Pattern: pattern}
	if pattern == AllURLs {
		g.all = true
		return g, nil
	}

	sep := strings.Index(pattern, "://")
	if sep <= 0 {
		return nil, errors.Errorf("match pattern %s is missing a scheme", pattern)
	}

	scheme := strings.ToLower(pattern[:sep])
	switch {
	case scheme == "*":
		g.schemes = []string{"http", "https"}
	case includeFunction(globSchemes, scheme):
		g.schemes = []string{scheme}
	default:
		return nil, errors.Errorf("match pattern %s has an unsupported scheme", pattern)
	}

	rest := pattern[sep+3:]
	slash := strings.Index(rest, "/")
	if slash < 0 {
		return nil, errors.Errorf("match pattern %s is missing a path", pattern)
	}
	host, path := strings.ToLower(rest[:slash]), rest[slash:]

	hostExpr, err := compileHost(host, scheme == "file")
	if err != nil {
		return nil, errors.Wrapf(err, "match pattern %s", pattern)
	}
	g.host = hostExpr
	g.path = regexp.MustCompile("^" + globToExpr(path) + "$")
	return g, nil
}

func compileHost(host string, isFile bool) (*regexp.Regexp, error) {
	switch {
	case host == "*":
		return regexp.MustCompile("^.*$"), nil
	case host == "" && isFile:
		return regexp.MustCompile("^$"), nil
	case host == "":
		return nil, errors.New("empty host")
	case strings.HasPrefix(host, "*."):
		return regexp.MustCompile(`^(.+\.)?` + regexp.QuoteMeta(host[2:]) + "$"), nil
	case strings.Contains(host, "*"):
		return nil, errors.New("wildcard must be the first label of the host")
	}
	return regexp.MustCompile("^" + regexp.QuoteMeta(host) + "$"), nil
}

func globToExpr(glob string) string {
	parts := strings.Split(glob, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return strings.Join(parts, ".*")
}

// Matches the request url against the pattern
func (g *ChromeGlob) Matches(details *kitt.WebRequestDetails) bool {
	return g.MatchURL(details.URL())
}

// MatchURL returns true if raw matches the pattern
func (g *ChromeGlob) MatchURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	if g.all {
		return includeFunction(globSchemes, scheme)
	}
	if !includeFunction(g.schemes, scheme) {
		return false
	}
	if !g.host.MatchString(strings.ToLower(u.Hostname())) {
		return false
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return g.path.MatchString(path)
}
