package chatcompletion

import (
	"fmt"
	"net/url"
	"strings"
)

const defaultBaseURL = "http://localhost:1234"

var loopbackHosts = map[string]struct{}{
	"localhost": {},
	"127.0.0.1": {},
	"::1":       {},
}

func normalizeBaseURL(baseURL string) string {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return strings.TrimRight(baseURL, "/")
}

// ValidateBaseURL accepts loopback endpoints over http or https, and other hosts
// only over https when they are listed in allowedHosts.
func ValidateBaseURL(baseURL string, allowedHosts []string) error {
	baseURL = normalizeBaseURL(baseURL)

	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("invalid VERDICT_BASE_URL: %w", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("invalid VERDICT_BASE_URL %q: absolute URL with host is required", baseURL)
	}
	if u.User != nil {
		return fmt.Errorf("invalid VERDICT_BASE_URL %q: userinfo is not allowed", baseURL)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("invalid VERDICT_BASE_URL %q: query and fragment are not allowed", baseURL)
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fmt.Errorf("invalid VERDICT_BASE_URL %q: host is required", baseURL)
	}

	switch scheme {
	case "http", "https":
	default:
		return fmt.Errorf("invalid VERDICT_BASE_URL %q: http or https is required", baseURL)
	}

	if _, ok := loopbackHosts[host]; ok {
		return nil
	}
	if scheme != "https" {
		return fmt.Errorf("invalid VERDICT_BASE_URL %q: https is required for non-loopback hosts", baseURL)
	}
	if _, ok := normalizeAllowedHosts(allowedHosts)[host]; !ok {
		return fmt.Errorf("invalid VERDICT_BASE_URL %q: host %q is not in VERDICT_ALLOWED_HOSTS", baseURL, host)
	}
	return nil
}

func normalizeAllowedHosts(allowedHosts []string) map[string]struct{} {
	out := make(map[string]struct{}, len(allowedHosts))
	for _, h := range allowedHosts {
		v := strings.ToLower(strings.TrimSpace(h))
		v = strings.TrimPrefix(v, "http://")
		v = strings.TrimPrefix(v, "https://")
		v = strings.Trim(v, "/")
		if v == "" {
			continue
		}
		if i := strings.Index(v, ":"); i >= 0 {
			v = v[:i]
		}
		out[v] = struct{}{}
	}
	return out
}
