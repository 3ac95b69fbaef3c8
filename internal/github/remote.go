package github

import (
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	"github.com/dshills/prgate/internal/pr"
)

var (
	httpsRemoteRe = regexp.MustCompile(`https?://[^/]+/([^/]+)/([^/\s]+)`)
	sshRemoteRe   = regexp.MustCompile(`[^@]+@[^:]+:([^/]+)/([^/\s]+)`)
)

// DetectRepo parses owner/repo from the git remote origin URL.
func DetectRepo() (pr.Repo, error) {
	out, err := exec.Command("git", "remote", "get-url", "origin").Output()
	if err != nil {
		return pr.Repo{}, fmt.Errorf("cannot detect repo: git remote get-url origin failed: %w", err)
	}
	return ParseRemoteURL(strings.TrimSpace(string(out)))
}

// ParseRemoteURL extracts owner/repo from a git remote URL.
func ParseRemoteURL(url string) (pr.Repo, error) {
	url = strings.TrimSuffix(url, ".git")

	if m := httpsRemoteRe.FindStringSubmatch(url); len(m) == 3 {
		return pr.Repo{Owner: m[1], Name: m[2]}, nil
	}
	if m := sshRemoteRe.FindStringSubmatch(url); len(m) == 3 {
		return pr.Repo{Owner: m[1], Name: m[2]}, nil
	}
	return pr.Repo{}, fmt.Errorf("cannot parse owner/repo from remote URL: %s", url)
}

// ParseRepo parses an "owner/name" reference.
func ParseRepo(ref string) (pr.Repo, error) {
	owner, name, ok := strings.Cut(strings.TrimSpace(ref), "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return pr.Repo{}, fmt.Errorf("repository must be owner/name, got %q", ref)
	}
	return pr.Repo{Owner: owner, Name: name}, nil
}
