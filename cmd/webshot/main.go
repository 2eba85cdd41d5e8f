package main

import (
	"bufio"
	"flag"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/root4loot/goutils/fileutil"
	"github.com/root4loot/goutils/log"
	"github.com/root4loot/goutils/urlutil"
	"github.com/root4loot/webshot"
	"gopkg.in/yaml.v3"
)

const (
	author = "@danielantonsen"
	usage  = `USAGE:
  webshot [options] (-t <target> | -l <targets.txt>)

INPUT:
  -t,   --target                 target URL
  -l,   --list                   input file with list of targets (one per line)

CONFIGURATIONS:
  -k,   --api-key                API key                              (Default: $BROWSHOT_API_KEY)
  -p,   --profile                browser/device profile               (Default: chrome)
  -pf,  --profiles               YAML file with profile -> instance id overrides
  -c,   --concurrency            number of concurrent captures        (Default: 10)
  -ck,  --cookie                 session cookie passed to the service
  -d,   --render-delay           service-side render delay (seconds)  (Default: 1)
  -ac,  --allow-cache            allow the service to reuse cached screenshots
  -rd,  --retry-delay            initial delay between retries (seconds)  (Default: 1)
  -mrd, --max-retry-delay        backoff cap (seconds)                (Default: 30)
  -ma,  --max-attempts           give up after this many attempts (0 = never)
        --endpoint               API base URL

OUTPUT:
  -o,   --outfolder              save images to given folder          (Default: ./screenshots)
  -s,   --silence                silence output
  -v,   --verbose                verbose output
        --version                display version
`
)

type cli struct {
	Options      webshot.Options
	TargetURL    string
	Infile       string
	Profile      string
	Outfolder    string
	ProfilesFile string
	Cookie       string
}

func init() {
	log.Init("webshot")
}

func main() {
	cli := &cli{}
	cli.parseFlags()

	runner := webshot.NewRunnerWithOptions(cli.Options)

	targetChannel := make(chan string)
	done := make(chan struct{})

	go processTarget(cli.worker(runner), cli.Options.Concurrency, targetChannel, done)

	processTargets(cli, targetChannel)
	close(targetChannel)
	<-done
}

func processTargets(cli *cli, targetChannel chan<- string) {
	if cli.hasStdin() {
		processStdinTargets(targetChannel)
	}

	if cli.hasInfile() {
		processFileTargets(cli.Infile, targetChannel)
	}

	if cli.hasTarget() {
		processDirectTargets(cli.TargetURL, targetChannel)
	}
}

func processStdinTargets(targetChannel chan<- string) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		for _, target := range strings.Fields(scanner.Text()) {
			targetChannel <- target
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading from stdin: %v\n", err)
		close(targetChannel)
		os.Exit(1)
	}
}

func processFileTargets(infile string, targetChannel chan<- string) {
	fileTargets, err := fileutil.ReadFile(infile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		close(targetChannel)
		os.Exit(1)
	}
	for _, target := range fileTargets {
		targetChannel <- target
	}
}

func processDirectTargets(targetURL string, targetChannel chan<- string) {
	if strings.Contains(targetURL, ",") {
		targets := strings.Split(targetURL, ",")
		for _, target := range targets {
			targetChannel <- target
		}
	} else {
		targetChannel <- targetURL
	}
}

func processTarget(worker func(string) error, concurrency int, targetChannel <-chan string, done chan struct{}) {
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for target := range targetChannel {
		sem <- struct{}{}
		wg.Add(1)
		go func(t string) {
			defer func() { <-sem }()
			defer wg.Done()
			if err := worker(t); err != nil {
				log.Errorf("Error processing target %s: %v", t, err)
			}
		}(target)
	}

	wg.Wait()
	close(done)
}

// worker returns the per-target capture function fed to processTarget.
func (cli *cli) worker(runner *webshot.Runner) func(string) error {
	return func(target string) error {
		targetURL := target
		if !urlutil.HasScheme(target) {
			log.Debugf("No scheme specified for %s: assuming HTTPS", target)
			targetURL = "https://" + target
		}

		output, err := outputPath(cli.Outfolder, targetURL, cli.Profile)
		if err != nil {
			log.Errorf("Invalid URL %s: %v", targetURL, err)
			return nil
		}

		result := runner.Single(webshot.Request{
			URL:        targetURL,
			Profile:    cli.Profile,
			Cookie:     cli.Cookie,
			OutputPath: output,
		})

		if result.Abandoned {
			log.Errorf("Could not capture %s (status %d): %s", target, result.StatusCode, result.Detail)
			return nil
		}

		log.Resultf("Screenshot saved to %s", result.Path)
		return nil
	}
}

// outputPath derives the image path for a target from its scheme, host and
// path, plus the profile name.
func outputPath(folder, target, profile string) (string, error) {
	if err := os.MkdirAll(folder, os.ModePerm); err != nil {
		return "", err
	}

	u, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", fmt.Errorf("no host in %s", target)
	}

	var path string
	if u.Path != "" && u.Path != "/" {
		path = "_" + strings.Trim(u.Path, "/")
		path = strings.ReplaceAll(path, "/", "_")
	}

	fileName := u.Scheme + "_" + u.Host + path + "_" + profile + ".png"
	return filepath.Join(folder, strings.ToLower(fileName)), nil
}

// loadProfiles reads a profile -> instance id table from a YAML file.
func loadProfiles(path string) (webshot.Profiles, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var profiles webshot.Profiles
	if err := yaml.Unmarshal(data, &profiles); err != nil {
		return nil, err
	}
	return profiles, nil
}

func (cli *cli) parseFlags() {
	var help, ver bool
	var retryDelay, maxRetryDelay int

	options := webshot.DefaultOptions()

	// TARGET
	flag.StringVar(&cli.TargetURL, "target", "", "")
	flag.StringVar(&cli.TargetURL, "t", "", "")
	flag.StringVar(&cli.Infile, "l", "", "")
	flag.StringVar(&cli.Infile, "list", "", "")

	// CONFIGURATIONS
	flag.StringVar(&cli.Options.APIKey, "api-key", os.Getenv("BROWSHOT_API_KEY"), "")
	flag.StringVar(&cli.Options.APIKey, "k", os.Getenv("BROWSHOT_API_KEY"), "")
	flag.StringVar(&cli.Profile, "profile", "chrome", "")
	flag.StringVar(&cli.Profile, "p", "chrome", "")
	flag.StringVar(&cli.ProfilesFile, "profiles", "", "")
	flag.StringVar(&cli.ProfilesFile, "pf", "", "")
	flag.IntVar(&cli.Options.Concurrency, "concurrency", options.Concurrency, "")
	flag.IntVar(&cli.Options.Concurrency, "c", options.Concurrency, "")
	flag.StringVar(&cli.Cookie, "cookie", "", "")
	flag.StringVar(&cli.Cookie, "ck", "", "")
	flag.IntVar(&cli.Options.RenderDelay, "render-delay", options.RenderDelay, "")
	flag.IntVar(&cli.Options.RenderDelay, "d", options.RenderDelay, "")
	allowCache := flag.Bool("allow-cache", false, "")
	flag.BoolVar(allowCache, "ac", false, "")
	flag.IntVar(&retryDelay, "retry-delay", int(options.RetryDelay/time.Second), "")
	flag.IntVar(&retryDelay, "rd", int(options.RetryDelay/time.Second), "")
	flag.IntVar(&maxRetryDelay, "max-retry-delay", int(options.MaxRetryDelay/time.Second), "")
	flag.IntVar(&maxRetryDelay, "mrd", int(options.MaxRetryDelay/time.Second), "")
	flag.IntVar(&cli.Options.MaxAttempts, "max-attempts", options.MaxAttempts, "")
	flag.IntVar(&cli.Options.MaxAttempts, "ma", options.MaxAttempts, "")
	flag.StringVar(&cli.Options.Endpoint, "endpoint", options.Endpoint, "")

	// OUTPUT
	flag.StringVar(&cli.Outfolder, "outfolder", "./screenshots", "")
	flag.StringVar(&cli.Outfolder, "o", "./screenshots", "")
	flag.BoolVar(&cli.Options.Silence, "silence", false, "")
	flag.BoolVar(&cli.Options.Silence, "s", false, "")
	flag.BoolVar(&cli.Options.Verbose, "verbose", false, "")
	flag.BoolVar(&cli.Options.Verbose, "v", false, "")
	flag.BoolVar(&help, "help", false, "")
	flag.BoolVar(&help, "h", false, "")
	flag.BoolVar(&ver, "version", false, "")

	flag.Usage = func() {
		fmt.Print(usage)
	}

	flag.Parse()

	if help {
		fmt.Print(usage)
		os.Exit(0)
	}

	if ver {
		fmt.Println("webshot ", webshot.Version)
		os.Exit(0)
	}

	cli.Options.DisableCache = !*allowCache
	cli.Options.RetryDelay = time.Duration(retryDelay) * time.Second
	cli.Options.MaxRetryDelay = time.Duration(maxRetryDelay) * time.Second

	if !cli.hasStdin() && !cli.hasInfile() && !cli.hasTarget() && !help {
		log.Error("No target specified")
		fmt.Print(usage)
		os.Exit(0)
	}

	if cli.Options.APIKey == "" {
		log.Error("No API key specified (use -k or set BROWSHOT_API_KEY)")
		os.Exit(1)
	}

	if cli.ProfilesFile != "" {
		profiles, err := loadProfiles(cli.ProfilesFile)
		if err != nil {
			log.Fatalf("Could not load profiles from %s: %v", cli.ProfilesFile, err)
		}
		cli.Options.Profiles = profiles
	}

	if cli.Options.Profiles == nil {
		cli.Options.Profiles = webshot.DefaultProfiles()
	}

	if _, ok := cli.Options.Profiles[cli.Profile]; !ok {
		log.Errorf("Unknown profile %q (known: %s)", cli.Profile, strings.Join(cli.Options.Profiles.Names(), ", "))
		os.Exit(1)
	}
}

func (cli *cli) hasStdin() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}

	mode := stat.Mode()

	isPipedFromChrDev := (mode & os.ModeCharDevice) == 0
	isPipedFromFIFO := (mode & os.ModeNamedPipe) != 0

	return isPipedFromChrDev || isPipedFromFIFO
}

func (cli *cli) hasTarget() bool {
	return cli.TargetURL != ""
}

func (cli *cli) hasInfile() bool {
	return cli.Infile != ""
}
