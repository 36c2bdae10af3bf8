package git

import (
	"fmt"
	"regexp"
	"strings"
)

var repoPattern = regexp.MustCompile(`github\.com[/:]([^/\s]+)/([^/\s?#]+)`)

// ExtractRepoInfo parses a GitHub URL and returns owner/repo.
// It accepts https, http, bare-host and scp-style (git@github.com:owner/repo)
// forms. A trailing ".git" is stripped and anything after the repo segment
// is ignored.
func ExtractRepoInfo(url string) (owner, repo string, err error) {
	m := repoPattern.FindStringSubmatch(strings.TrimSpace(url))
	if m == nil {
		return "", "", fmt.Errorf("cannot parse owner/repo from: %q", url)
	}
	owner = m[1]
	repo = strings.TrimSuffix(m[2], ".git")
	if owner == "" || repo == "" {
		return "", "", fmt.Errorf("cannot parse owner/repo from: %q", url)
	}
	return owner, repo, nil
}

// CanonicalURL returns https://github.com/<owner>/<repo>.
func CanonicalURL(owner, repo string) string {
	return fmt.Sprintf("https://github.com/%s/%s", owner, repo)
}
