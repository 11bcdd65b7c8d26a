package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"anibridge-plex/internal/services"
	"anibridge-plex/internal/services/plex"
	"anibridge-plex/internal/services/plextv"
)

const checkTimeout = 10 * time.Second

// CheckPlexServer verifies the media server is reachable and accepts the token.
func CheckPlexServer(ctx context.Context, baseURL, token string) Result {
	const name = "Plex Media Server"

	if strings.TrimSpace(baseURL) == "" {
		return Result{Name: name, Detail: "missing url"}
	}
	if strings.TrimSpace(token) == "" {
		return Result{Name: name, Detail: "missing token"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	client, err := plex.New(baseURL, token, plex.WithTimeout(checkTimeout))
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	if _, err := client.Sections(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeError(err)}
	}
	identity, err := client.Identity(checkCtx)
	if err != nil {
		return Result{Name: name, Detail: summarizeError(err)}
	}
	detail := "Reachable"
	if identity.Version != "" {
		detail = fmt.Sprintf("Reachable (version %s)", identity.Version)
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckPlexAccount verifies the token resolves to a plex.tv account.
func CheckPlexAccount(ctx context.Context, baseURL, token string) Result {
	const name = "plex.tv account"

	if strings.TrimSpace(token) == "" {
		return Result{Name: name, Detail: "missing token"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	client, err := plextv.New(plextv.Config{BaseURL: baseURL, Token: token, Timeout: checkTimeout})
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	account, err := client.Account(checkCtx)
	if err != nil {
		return Result{Name: name, Detail: summarizeError(err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("Signed in as %s", account.Username)}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

func summarizeError(err error) string {
	switch {
	case errors.Is(err, services.ErrUnauthorized):
		return "auth failed (invalid token)"
	case errors.Is(err, context.DeadlineExceeded):
		return "check timed out (server unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "check timed out (server unreachable)"
	}
	return err.Error()
}
