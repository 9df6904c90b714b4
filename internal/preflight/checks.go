package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"yotoup/internal/auth"
)

const endpointTimeout = 5 * time.Second

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "not configured"}
	}
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

// CheckTokens reports whether the stored pair can authorize requests without
// a new device login. An expired access token with a refresh token is a
// warning, since the next request refreshes it.
func CheckTokens(pair auth.TokenPair, now time.Time, margin time.Duration) Result {
	const name = "Login"
	switch {
	case pair.Empty():
		return Result{Name: name, Detail: "not logged in; run 'yotoup auth login'"}
	case !pair.Expired(now, margin):
		detail := "access token valid"
		if exp, ok := auth.ExpiresAt(pair.AccessToken); ok {
			detail = fmt.Sprintf("access token valid for %s", exp.Sub(now).Round(time.Second))
		}
		return Result{Name: name, Passed: true, Detail: detail}
	case strings.TrimSpace(pair.RefreshToken) != "":
		return Result{Name: name, Warning: true, Detail: "access token expired; will refresh on next use"}
	default:
		return Result{Name: name, Detail: "access token expired and no refresh token; run 'yotoup auth login'"}
	}
}

// CheckEndpoint verifies that baseURL answers HTTP. Any response below 500
// counts as reachable; authorization is not tested.
func CheckEndpoint(ctx context.Context, name, baseURL string) Result {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return Result{Name: name, Detail: "missing url"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, endpointTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodHead, base+"/", nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("bad url (%v)", err)}
	}
	client := &http.Client{Timeout: endpointTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Detail: summarizeNetError(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return Result{Name: name, Warning: true, Detail: fmt.Sprintf("%s answered %d", base, resp.StatusCode)}
	}
	return Result{Name: name, Passed: true, Detail: base + " reachable"}
}

func summarizeNetError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timed out"
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "host not found: " + dnsErr.Name
	}
	return err.Error()
}
