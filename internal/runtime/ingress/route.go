package ingress

import (
	"strconv"
	"strings"
)

// Route is the parsed form of an ingress path.
type Route struct {
	Version  int
	Domain   string
	Provider string
	Tenant   string
	Team     string
	Handler  string
}

const routeHint = "expected /v1/{domain}/ingress/{provider}/{tenant}/{team?}/{handler?}"

// ParseRoute parses both the versioned grammar
// /v1/{domain}/ingress/{provider}/{tenant}/{team?}/{handler?} and the
// legacy versionless form kept for older webhook registrations. Only version
// 1 exists; any other version segment fails the parse. A missing team
// segment resolves to "default".
func ParseRoute(path string) (Route, bool) {
	var segments []string
	for _, segment := range strings.Split(strings.TrimPrefix(path, "/"), "/") {
		if segment != "" {
			segments = append(segments, segment)
		}
	}
	if len(segments) == 0 {
		return Route{}, false
	}

	version := 1
	if v, ok := parseVersion(segments[0]); ok {
		version = v
		segments = segments[1:]
	}

	// {domain}/ingress/{provider}/{tenant}/{team?}/{handler?}
	if len(segments) < 4 || len(segments) > 6 || !strings.EqualFold(segments[1], "ingress") {
		return Route{}, false
	}
	domain, ok := parseDomain(segments[0])
	if !ok {
		return Route{}, false
	}

	route := Route{
		Version:  version,
		Domain:   domain,
		Provider: segments[2],
		Tenant:   segments[3],
		Team:     "default",
	}
	if len(segments) > 4 {
		route.Team = segments[4]
	}
	if len(segments) > 5 {
		route.Handler = segments[5]
	}
	return route, true
}

func parseVersion(segment string) (int, bool) {
	if len(segment) < 2 || (segment[0] != 'v' && segment[0] != 'V') {
		return 0, false
	}
	version, err := strconv.Atoi(segment[1:])
	if err != nil || version != 1 {
		return 0, false
	}
	return version, true
}

func parseDomain(segment string) (string, bool) {
	switch strings.ToLower(segment) {
	case "messaging":
		return "messaging", true
	case "events":
		return "events", true
	default:
		return "", false
	}
}
