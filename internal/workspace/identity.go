// Package workspace derives an audit identity for a session from its first
// capability root. The identity ends up on every provenance entry so
// exported ledgers can be grouped by who owns the code being accessed.
package workspace

import (
	"os"
	"regexp"
	"strings"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
)

var (
	sshRemotePattern   = regexp.MustCompile(`git@github\.com:([^/]+)/`)
	httpsRemotePattern = regexp.MustCompile(`github\.com/([^/]+)/`)
)

// Identity returns an audit identity for the repository at rootPath.
// Priority: GitHub owner from the origin remote, git user.name from global
// config, $USER, "local".
func Identity(rootPath string) string {
	if rootPath != "" {
		if owner := remoteOwner(rootPath); owner != "" {
			return sanitize(strings.ToLower(owner))
		}
	}

	if cfg, err := gitconfig.LoadConfig(gitconfig.GlobalScope); err == nil && cfg.User.Name != "" {
		return sanitize(strings.ReplaceAll(strings.ToLower(cfg.User.Name), " ", "_"))
	}

	if user := os.Getenv("USER"); user != "" {
		return sanitize(strings.ToLower(user))
	}

	return "local"
}

// remoteOwner extracts the GitHub owner from the origin remote, if any.
func remoteOwner(rootPath string) string {
	repo, err := git.PlainOpen(rootPath)
	if err != nil {
		return ""
	}
	remote, err := repo.Remote("origin")
	if err != nil {
		return ""
	}
	urls := remote.Config().URLs
	if len(urls) == 0 {
		return ""
	}
	return parseOwner(urls[0])
}

// parseOwner handles both git@github.com:owner/repo.git and
// https://github.com/owner/repo.git forms.
func parseOwner(url string) string {
	if m := sshRemotePattern.FindStringSubmatch(url); len(m) > 1 {
		return m[1]
	}
	if m := httpsRemotePattern.FindStringSubmatch(url); len(m) > 1 {
		return m[1]
	}
	return ""
}

// sanitize keeps lowercase alphanumerics and underscores.
func sanitize(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			sb.WriteRune(r)
		}
	}
	if sb.Len() == 0 {
		return "local"
	}
	return sb.String()
}
