package credstore

import (
	"context"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// RefreshTokenVar is the env-file line rewritten on rotation.
const RefreshTokenVar = "SCHWAB_REFRESH_TOKEN"

// EnvFileRotator rewrites the refresh token line of an existing env file.
// Other lines, comments and ordering are preserved.
type EnvFileRotator struct {
	Path string
}

// NewEnvFileRotator returns a rotator for path, or ".env" when empty.
func NewEnvFileRotator(path string) *EnvFileRotator {
	if path == "" {
		path = ".env"
	}
	return &EnvFileRotator{Path: path}
}

// RotateRefreshToken implements Rotator. A missing file is left alone.
func (r *EnvFileRotator) RotateRefreshToken(_ context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}

	info, err := os.Stat(r.Path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "stat %s", r.Path)
	}

	data, err := os.ReadFile(r.Path)
	if err != nil {
		return false, errors.Wrapf(err, "read %s", r.Path)
	}

	content := rewriteRefreshToken(string(data), token)
	if err := writeFileAtomic(r.Path, []byte(content), info.Mode().Perm()); err != nil {
		return false, errors.Wrapf(err, "write %s", r.Path)
	}
	return true, nil
}

func rewriteRefreshToken(content, token string) string {
	prefix := RefreshTokenVar + "="
	replacement := prefix + token

	content = strings.ReplaceAll(content, "\r\n", "\n")
	lines := strings.Split(content, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}

	replaced := false
	for i, line := range lines {
		if strings.HasPrefix(line, prefix) {
			lines[i] = replacement
			replaced = true
		}
	}
	if !replaced {
		lines = append(lines, replacement)
	}
	return strings.Join(lines, "\n") + "\n"
}
