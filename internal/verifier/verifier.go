// Package verifier decides whether a freshly deployed URL is serving.
//
// The check is deliberately optimistic. The provider needs time to
// propagate a deployment and may put it behind an authentication wall, so
// timeouts, 401s and most 4xx responses count as verified. Only a 404, a
// 5xx with no working fallback path, or a hard transport failure does not.
package verifier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"launchpad-deployment/internal/deploylog"
	"launchpad-deployment/internal/logger"

	"github.com/sirupsen/logrus"
)

const (
	UserAgent = "Launchpad-Verifier/1.0"

	baseTimeout  = 30 * time.Second
	retryTimeout = 10 * time.Second
	pathTimeout  = 5 * time.Second
	authWallWait = 30 * time.Second

	maxBodySize = 1 << 20
)

// FallbackPaths are tried in order when the base URL does not answer 2xx.
var FallbackPaths = []string{"/index.html", "/health", "/status", "/ping"}

var authWallMarkers = []string{"authentication required", "vercel"}

type Verifier struct {
	client *http.Client

	baseTimeout  time.Duration
	retryTimeout time.Duration
	pathTimeout  time.Duration
	authWallWait time.Duration
	sleep        func(ctx context.Context, d time.Duration) error
}

func New() *Verifier {
	return &Verifier{
		client:       &http.Client{},
		baseTimeout:  baseTimeout,
		retryTimeout: retryTimeout,
		pathTimeout:  pathTimeout,
		authWallWait: authWallWait,
		sleep:        sleepContext,
	}
}

type response struct {
	status      int
	contentType string
	body        []byte
}

func (r response) ok() bool { return r.status >= 200 && r.status < 300 }

// Verify checks liveURL and reports whether the deployment should be
// considered published. It never returns an error; every outcome is
// recorded on rec.
func (v *Verifier) Verify(ctx context.Context, liveURL string, rec deploylog.Recorder) bool {
	log := logger.WithSubject("verifier", rec.SubjectID()).WithField("url", liveURL)

	if liveURL == "" {
		rec.Error("No live URL to verify")
		return false
	}
	base := strings.TrimRight(liveURL, "/")

	rec.Infof("Verifying app at %s", base)

	resp, err := v.get(ctx, base, v.baseTimeout)
	if err != nil {
		return v.transportFailure(err, rec, log)
	}
	contentType := resp.contentType
	if contentType == "" {
		contentType = "unknown"
	}
	rec.Infof("Response: %d - %s", resp.status, contentType)

	if resp.status == http.StatusUnauthorized {
		return v.handleUnauthorized(ctx, base, resp, rec, log)
	}

	if resp.ok() {
		rec.Successf("Verification successful: %d", resp.status)
		return true
	}

	for _, path := range FallbackPaths {
		rec.Infof("Trying path: %s", path)
		attempt, err := v.get(ctx, base+path, v.pathTimeout)
		if err != nil {
			if isTimeout(err) {
				rec.Warnf("Path %s timed out - might still be deploying", path)
				return true
			}
			rec.Warnf("Path %s failed: %v", path, err)
			continue
		}
		if attempt.ok() {
			rec.Successf("Verification successful at %s: %d", path, attempt.status)
			return true
		}
	}

	rec.Warnf("Verification failed: %d", resp.status)
	if len(resp.body) < 500 {
		rec.Infof("Response preview: %s", truncate(string(resp.body), 200))
	}

	if resp.status >= 400 && resp.status < 500 && resp.status != http.StatusNotFound {
		rec.Infof("Got %d - might be a temporary issue, allowing to pass", resp.status)
		return true
	}

	log.WithField("status", resp.status).Info("Deployment not reachable")
	return false
}

func (v *Verifier) handleUnauthorized(ctx context.Context, base string, resp response, rec deploylog.Recorder, log *logrus.Entry) bool {
	rec.Info("Got 401 - checking response content")

	if hasAuthWall(resp.body) {
		rec.Warn("App shows Vercel authentication page")
		rec.Info("This usually means the deployment is still processing or has no index.html")
		rec.Infof("Waiting %s for deployment to complete...", v.authWallWait)

		if err := v.sleep(ctx, v.authWallWait); err != nil {
			rec.Errorf("Verification error: %v", err)
			return false
		}

		retry, err := v.get(ctx, base, v.retryTimeout)
		if err != nil {
			return v.transportFailure(err, rec, log)
		}
		rec.Infof("Retry response: %d", retry.status)

		switch {
		case retry.ok():
			rec.Successf("Verification successful on retry: %d", retry.status)
			return true
		case retry.status == http.StatusUnauthorized:
			rec.Warn("Still getting 401 - this might be a deployment configuration issue")
			rec.Info("The app deployed successfully but may need an index.html file")
		default:
			rec.Infof("Retry got different status: %d", retry.status)
		}
	}

	rec.Success("Treating 401 as successful deployment (app is live, just needs configuration)")
	return true
}

func (v *Verifier) transportFailure(err error, rec deploylog.Recorder, log *logrus.Entry) bool {
	if isTimeout(err) {
		rec.Warn("Verification timeout - might still be deploying")
		return true
	}
	rec.Errorf("Verification error: %v", err)
	log.WithError(err).Warn("Verification request failed")
	return false
}

func (v *Verifier) get(ctx context.Context, url string, timeout time.Duration) (response, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return response{}, err
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := v.client.Do(req)
	if err != nil {
		return response{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return response{}, fmt.Errorf("read body: %w", err)
	}

	return response{
		status:      resp.StatusCode,
		contentType: resp.Header.Get("Content-Type"),
		body:        body,
	}, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
