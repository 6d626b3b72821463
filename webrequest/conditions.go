package webrequest

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"gitlab.com/kittcore/kitt"
)

// Condition decides whether a rule applies to a request
type Condition interface {
	Matches(details *kitt.WebRequestDetails) bool
}

// GroupType of a condition group
type GroupType int8

const (
	GroupAnd GroupType = iota
	GroupOr
)

// Group of conditions, an empty group matches everything
type Group struct {
	Type       GroupType
	Conditions []Condition
}

// And group
func And(conditions ...Condition) *Group {
	return &Group{Type: GroupAnd, Conditions: conditions}
}

// Or group
func Or(conditions ...Condition) *Group {
	return &Group{Type: GroupOr, Conditions: conditions}
}

// Add a condition to the group
func (g *Group) Add(c Condition) {
	g.Conditions = append(g.Conditions, c)
}

// Matches all (And) or any (Or) of the grouped conditions
func (g *Group) Matches(details *kitt.WebRequestDetails) bool {
	if len(g.Conditions) == 0 {
		return true
	}

	for _, c := range g.Conditions {
		matched := c.Matches(details)
		if g.Type == GroupAnd && !matched {
			return false
		}
		if g.Type == GroupOr && matched {
			return true
		}
	}
	return g.Type == GroupAnd
}

// detail paths understood by DetailPath
const (
	PathStage        = "stage"
	PathResourceType = "resourceTypeString"
	PathURL          = "url"
	PathMethod       = "method"
	PathTabID        = "tabId"
	PathFrameID      = "frameId"
)

// DetailPath compares a single request detail to a value
type DetailPath struct {
	Path  string
	Value string
}

// Matches if the detail at Path equals Value
func (p *DetailPath) Matches(details *kitt.WebRequestDetails) bool {
	switch p.Path {
	case PathStage:
		return string(details.Stage) == p.Value
	case PathResourceType:
		return details.ResourceType.String() == p.Value
	case PathURL:
		return details.URL() == p.Value
	case PathMethod:
		return strings.EqualFold(details.Method(), p.Value)
	case PathTabID:
		return strconv.FormatInt(details.TabID, 10) == p.Value
	case PathFrameID:
		return strconv.FormatInt(details.FrameID, 10) == p.Value
	}
	log.Warn().Str("path", p.Path).Msg("unknown detail path in rule condition")
	return false
}

// ResourceTypes matches any of the chrome resource type names
type ResourceTypes []string

// Matches if the request type is listed
func (r ResourceTypes) Matches(details *kitt.WebRequestDetails) bool {
	name := details.ResourceType.String()
	for _, t := range r {
		if t == name {
			return true
		}
	}
	return false
}

// URLFilter as used by declarativeWebRequest.RequestMatcher, every set field must match
type URLFilter struct {
	HostContains string   `json:"hostContains"`
	HostEquals   string   `json:"hostEquals"`
	HostPrefix   string   `json:"hostPrefix"`
	HostSuffix   string   `json:"hostSuffix"`
	PathContains string   `json:"pathContains"`
	PathEquals   string   `json:"pathEquals"`
	PathPrefix   string   `json:"pathPrefix"`
	PathSuffix   string   `json:"pathSuffix"`
	URLContains  string   `json:"urlContains"`
	URLEquals    string   `json:"urlEquals"`
	URLPrefix    string   `json:"urlPrefix"`
	URLSuffix    string   `json:"urlSuffix"`
	URLMatches   string   `json:"urlMatches"`
	Schemes      []string `json:"schemes"`
	Ports        []int    `json:"ports"`

	urlMatchesExpr *regexp.Regexp
}

// Compile the urlMatches expression, must be called before Matches if URLMatches is set
func (f *URLFilter) Compile() error {
	if f.URLMatches == "" {
		return nil
	}
	expr, err := regexp.Compile(f.URLMatches)
	if err != nil {
		return err
	}
	f.urlMatchesExpr = expr
	return nil
}

// Matches the request url against every criteria that is set
func (f *URLFilter) Matches(details *kitt.WebRequestDetails) bool {
	raw := details.URL()
	u, err := url.Parse(raw)
	if err != nil {
		log.Warn().Err(err).Str("url", raw).Msg("failed to parse url for filter")
		return false
	}

	host := strings.ToLower(u.Hostname())
	path := u.EscapedPath()

	checks := []struct {
		criteria string
		value    string
		fn       func(string, string) bool
	}{
		{f.HostContains, host, strings.Contains},
		{f.HostEquals, host, equals},
		{f.HostPrefix, host, strings.HasPrefix},
		{f.HostSuffix, host, strings.HasSuffix},
		{f.PathContains, path, strings.Contains},
		{f.PathEquals, path, equals},
		{f.PathPrefix, path, strings.HasPrefix},
		{f.PathSuffix, path, strings.HasSuffix},
		{f.URLContains, raw, strings.Contains},
		{f.URLEquals, raw, equals},
		{f.URLPrefix, raw, strings.HasPrefix},
		{f.URLSuffix, raw, strings.HasSuffix},
	}
	for _, check := range checks {
		if check.criteria != "" && !check.fn(check.value, check.criteria) {
			return false
		}
	}

	if f.urlMatchesExpr != nil && !f.urlMatchesExpr.MatchString(raw) {
		return false
	}

	if len(f.Schemes) > 0 && !includeFunction(f.Schemes, strings.ToLower(u.Scheme)) {
		return false
	}

	if len(f.Ports) > 0 {
		port := portOf(u)
		found := false
		for _, p := range f.Ports {
			if p == port {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func equals(a, b string) bool {
	return a == b
}

func portOf(u *url.URL) int {
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err == nil {
			return port
		}
	}
	switch strings.ToLower(u.Scheme) {
	case "https", "wss":
		return 443
	case "ftp":
		return 21
	}
	return 80
}

func indexFunction(vs []string, t string) int {
	for i, v := range vs {
		if v == t {
			return i
		}
	}
	return -1
}

func includeFunction(vs []string, t string) bool {
	return indexFunction(vs, t) >= 0
}
