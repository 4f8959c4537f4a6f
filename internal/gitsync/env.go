package gitsync

import (
	"net/url"
	"os"
	"strings"
)

// sshOptions are fixed flags for non-interactive SSH use. Host keys are not
// verified; the trust anchor for SSH remotes is the deploy key itself.
var sshOptions = []string{
	"-o", "StrictHostKeyChecking=no",
	"-o", "UserKnownHostsFile=/dev/null",
	"-o", "BatchMode=yes",
	"-o", "ConnectTimeout=30",
}

// BuildEnv assembles the process environment for a git subprocess.
//
// For SSH remotes it sets GIT_SSH_COMMAND, optionally pinning the configured
// private key. For HTTPS remotes with an OAuth token it injects a one-shot
// credential helper through GIT_CONFIG_* variables so the token never appears
// on a command line or inside the repository's git config.
func BuildEnv(remoteURL, sshKeyPath, token string) []string {
	env := os.Environ()
	env = append(env, "GIT_TERMINAL_PROMPT=0")

	if isSSHRemote(remoteURL) {
		parts := append([]string{"ssh"}, sshOptions...)
		if sshKeyPath != "" {
			parts = append(parts, "-i", sshKeyPath)
		}
		env = append(env, "GIT_SSH_COMMAND="+strings.Join(parts, " "))
		return env
	}

	if token != "" {
		env = append(env,
			"GIT_CONFIG_COUNT=1",
			"GIT_CONFIG_KEY_0=credential.helper",
			`GIT_CONFIG_VALUE_0=!f() { echo username=oauth2; echo "password=$GITSCRIBE_OAUTH_TOKEN"; }; f`,
			"GITSCRIBE_OAUTH_TOKEN="+token,
		)
	}
	return env
}

func isSSHRemote(remoteURL string) bool {
	if strings.HasPrefix(remoteURL, "ssh://") {
		return true
	}
	// scp-like syntax: git@github.com:owner/repo.git
	if strings.Contains(remoteURL, "@") && !strings.Contains(remoteURL, "://") {
		return true
	}
	return false
}

// SanitizeURL strips userinfo from a remote URL so it can be logged.
func SanitizeURL(remoteURL string) string {
	if remoteURL == "" {
		return ""
	}
	if u, err := url.Parse(remoteURL); err == nil && u.User != nil {
		u.User = nil
		return u.String()
	}
	return remoteURL
}
