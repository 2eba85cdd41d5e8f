package webshot

import (
	"context"
	"fmt"
	"math/rand"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/root4loot/goutils/log"
	"github.com/root4loot/webshot/pkg/browshot"
)

// Capture drives one request to a terminal state: it performs single attempts
// against the service until one yields an image or a permanent failure.
// Transient failures (network errors, 5xx, too-small bodies) are retried with
// backoff; statuses in [400,500) are abandoned immediately. The artifact is
// written exactly once, on the successful attempt.
func (r *Runner) Capture(request Request) Result {
	log.Debug("Running capture on ", request.URL)

	instanceID := r.Options.Profiles.InstanceID(request.Profile)
	params := r.captureParams(request, instanceID)

	result := Result{Request: request}
	delay := r.Options.RetryDelay

	for {
		begin := time.Now()
		outcome := r.client.Simple(context.Background(), request.URL, params)
		elapsed := time.Since(begin)

		result.Attempts++
		result.StatusCode = outcome.StatusCode
		result.Detail = outcome.Detail

		switch outcome.Class {
		case browshot.ClassSuccess:
			if err := writeArtifact(request.OutputPath, outcome.Image); err != nil {
				log.Errorf("Could not save capture of %s to %s: %v", request.URL, request.OutputPath, err)
				result.Abandoned = true
				result.Detail = err.Error()
				return result
			}
			log.Infof("Captured %s with %s in %.2fs (status %d) -> %s",
				request.URL, request.Profile, elapsed.Seconds(), outcome.StatusCode, request.OutputPath)
			result.Path = request.OutputPath
			return result

		case browshot.ClassPermanent:
			log.Errorf("Giving up on %s with %s after %.2fs: status %d: %s",
				request.URL, request.Profile, elapsed.Seconds(), outcome.StatusCode, outcome.Detail)
			result.Abandoned = true
			return result

		default:
			log.Warnf("Attempt %d for %s with %s failed after %.2fs (status %d): %s",
				result.Attempts, request.URL, request.Profile, elapsed.Seconds(), outcome.StatusCode, outcome.Detail)
		}

		if r.Options.MaxAttempts > 0 && result.Attempts >= r.Options.MaxAttempts {
			log.Errorf("Giving up on %s with %s after %d attempts", request.URL, request.Profile, result.Attempts)
			result.Abandoned = true
			result.Detail = fmt.Sprintf("no success after %d attempts: %s", result.Attempts, outcome.Detail)
			return result
		}

		if delay > 0 {
			time.Sleep(withJitter(delay))
			delay = nextDelay(delay, r.Options.MaxRetryDelay)
		}
	}
}

// captureParams builds the fixed per-request service parameters.
func (r *Runner) captureParams(request Request, instanceID int) url.Values {
	params := url.Values{}
	params.Set("instance_id", strconv.Itoa(instanceID))
	params.Set("size", r.Options.CaptureSize)
	params.Set("delay", strconv.Itoa(r.Options.RenderDelay))
	if r.Options.DisableCache {
		params.Set("cache", "0")
	}
	if request.Cookie != "" {
		params.Set("cookie", request.Cookie)
	}
	return params
}

// writeArtifact writes the image bytes to path, truncating any existing file.
func writeArtifact(path string, image []byte) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = file.Write(image)
	return err
}

// nextDelay doubles the delay up to max.
func nextDelay(current, max time.Duration) time.Duration {
	next := current * 2
	if max > 0 && next > max {
		next = max
	}
	return next
}

// withJitter spreads a delay between 50% and 150% of its value so concurrent
// captures do not hit the service in lockstep.
func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d/2 + time.Duration(rand.Int63n(int64(d)))
}
