package webshot

import (
	"context"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/root4loot/goscope"
	"github.com/root4loot/goutils/log"
	"github.com/root4loot/webshot/pkg/browshot"
)

// Version of the library.
const Version = "0.1.0"

type Runner struct {
	Options *Options
	client  captureAPI
	mutex   sync.Mutex
}

// captureAPI is the single-attempt primitive the capture loop drives.
// Satisfied by *browshot.Client.
type captureAPI interface {
	Simple(ctx context.Context, pageURL string, params url.Values) browshot.Outcome
}

// Options contains options for the runner
type Options struct {
	Concurrency   int            // number of concurrent captures
	APIKey        string         // API credential
	Endpoint      string         // API base URL
	Profiles      Profiles       // profile name -> backend instance id
	Scope         *goscope.Scope // Scope to use
	DisableCache  bool           // ask the service to bypass its screenshot cache
	CaptureSize   string         // capture size ("page" for full page, "screen" for viewport)
	RenderDelay   int            // seconds the service waits before capturing
	MinImageSize  int            // minimum accepted image size (bytes)
	RetryDelay    time.Duration  // initial delay between attempts (0 retries immediately)
	MaxRetryDelay time.Duration  // backoff cap (0 for no cap)
	MaxAttempts   int            // attempt cap (0 retries until success or permanent failure)
	Silence       bool           // Silence output
	Verbose       bool           // Verbose logging
}

// Request describes one desired capture. It is never mutated by the runner.
type Request struct {
	URL        string // target page
	Profile    string // profile name from the runner's profile table
	Cookie     string // optional session cookie, passed through to the service
	OutputPath string // where the image is written
}

// Result is the terminal state of one capture.
type Result struct {
	Request    Request
	Path       string // set when the artifact was written
	StatusCode int    // status of the final attempt
	Detail     string // failure detail when abandoned
	Attempts   int
	Abandoned  bool
}

// Profiles maps a browser/device profile name to the numeric id of the
// backend instance that renders it.
type Profiles map[string]int

// DefaultProfiles returns the built-in profile table.
func DefaultProfiles() Profiles {
	return Profiles{
		"ie10":    360,
		"ff40":    58,
		"chrome":  282,
		"iphone":  185,
		"android": 182,
	}
}

// InstanceID resolves a profile name to its backend instance id. An unknown
// name is a programmer error and panics.
func (p Profiles) InstanceID(name string) int {
	id, ok := p[name]
	if !ok {
		panic("webshot: unknown profile " + name)
	}
	return id
}

// Names returns the profile names in sorted order.
func (p Profiles) Names() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	log.Init("webshot")
}

// DefaultOptions returns default options
func DefaultOptions() *Options {
	log.Debug("Getting default options...")

	return &Options{
		Concurrency:   10,
		Endpoint:      browshot.DefaultEndpoint,
		Profiles:      DefaultProfiles(),
		DisableCache:  true,
		CaptureSize:   "page",
		RenderDelay:   1,
		MinImageSize:  browshot.MinImageSize,
		RetryDelay:    time.Second,
		MaxRetryDelay: 30 * time.Second,
		MaxAttempts:   0,
	}
}

// NewRunner returns a new runner with default options and the given API key
func NewRunner(apiKey string) *Runner {
	log.Debug("Creating new runner...")

	options := DefaultOptions()
	options.APIKey = apiKey
	options.Scope = goscope.NewScope()

	return &Runner{
		Options: options,
		client:  newClient(options),
	}
}

// NewRunnerWithOptions returns a new runner with the specified options
func NewRunnerWithOptions(options Options) *Runner {
	SetLogLevel(&options)
	log.Debug("Creating new runner with options...")

	// If no scope is specified, create a new one
	if options.Scope == nil {
		options.Scope = goscope.NewScope()
	}
	if options.Profiles == nil {
		options.Profiles = DefaultProfiles()
	}
	if options.Endpoint == "" {
		options.Endpoint = browshot.DefaultEndpoint
	}
	if options.CaptureSize == "" {
		options.CaptureSize = "page"
	}
	if options.MinImageSize == 0 {
		options.MinImageSize = browshot.MinImageSize
	}

	return &Runner{
		Options: &options,
		client:  newClient(&options),
	}
}

func newClient(options *Options) *browshot.Client {
	return browshot.NewClient(options.APIKey,
		browshot.WithEndpoint(options.Endpoint),
		browshot.WithMinImageSize(options.MinImageSize))
}

// Single captures a single request and returns the result.
func (r *Runner) Single(request Request) Result {
	// Add target to scope.
	r.mutex.Lock()
	r.Options.Scope.AddTargetToScope(request.URL)
	r.mutex.Unlock()

	// Skip excluded targets.
	if r.Options.Scope.IsTargetExcluded(request.URL) {
		log.Debug("Target excluded from scope: ", request.URL)
		return Result{Request: request, Abandoned: true, Detail: "target excluded from scope"}
	}

	return r.Capture(request)
}

// Multiple captures multiple requests and returns the results
func (r *Runner) Multiple(requests []Request) []Result {
	log.Debug("Running multiple...")

	results := make([]Result, len(requests))
	sem := make(chan struct{}, r.Options.Concurrency)
	var wg sync.WaitGroup
	for i, request := range requests {
		sem <- struct{}{}
		wg.Add(1)
		go func(i int, req Request) {
			defer func() { <-sem }()
			defer wg.Done()
			results[i] = r.Single(req)
		}(i, request)
	}
	wg.Wait()

	return results
}

// MultipleStream captures multiple requests and streams the results using channels
func (r *Runner) MultipleStream(resultsChan chan<- Result, requests ...Request) {
	log.Debug("Running multiple stream...")
	defer close(resultsChan)

	sem := make(chan struct{}, r.Options.Concurrency)
	var wg sync.WaitGroup
	for _, request := range requests {
		sem <- struct{}{}
		wg.Add(1)
		go func(req Request) {
			defer func() { <-sem }()
			defer wg.Done()
			resultsChan <- r.Single(req)
		}(request)
	}
	wg.Wait()
}

// SetLogLevel initiates the logger and sets the log level based on the options
func SetLogLevel(options *Options) {
	if options.Silence {
		log.SetLevel(log.FatalLevel)
	} else if options.Verbose {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}
