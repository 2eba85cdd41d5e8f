package webshot

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/root4loot/webshot/pkg/browshot"
)

func TestDefaultProfiles(t *testing.T) {
	want := Profiles{
		"ie10":    360,
		"ff40":    58,
		"chrome":  282,
		"iphone":  185,
		"android": 182,
	}
	if got := DefaultProfiles(); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestProfilesNames(t *testing.T) {
	names := DefaultProfiles().Names()
	want := []string{"android", "chrome", "ff40", "ie10", "iphone"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("Expected sorted names %v, got %v", want, names)
	}
}

func TestInstanceID(t *testing.T) {
	profiles := DefaultProfiles()
	if id := profiles.InstanceID("chrome"); id != 282 {
		t.Errorf("Expected 282 for chrome, got %d", id)
	}

	defer func() {
		if recover() == nil {
			t.Error("Expected a panic for an unknown profile")
		}
	}()
	profiles.InstanceID("mosaic")
}

func TestNewRunnerWithOptionsFillsDefaults(t *testing.T) {
	runner := NewRunnerWithOptions(Options{APIKey: "key", Silence: true})

	if runner.Options.Profiles == nil {
		t.Error("Expected a default profile table")
	}
	if runner.Options.Endpoint != browshot.DefaultEndpoint {
		t.Errorf("Expected default endpoint, got %s", runner.Options.Endpoint)
	}
	if runner.Options.CaptureSize != "page" {
		t.Errorf("Expected full-page capture by default, got %q", runner.Options.CaptureSize)
	}
	if runner.Options.MinImageSize != browshot.MinImageSize {
		t.Errorf("Expected default minimum image size, got %d", runner.Options.MinImageSize)
	}
	if runner.Options.Scope == nil {
		t.Error("Expected a scope to be created")
	}
	if runner.client == nil {
		t.Error("Expected a client to be created")
	}
}

func TestMultiple(t *testing.T) {
	image := bytes.Repeat([]byte("m"), 1024)
	client := &scriptedClient{outcomes: []browshot.Outcome{success(image)}}
	runner := newTestRunner(t, client)

	dir := t.TempDir()
	requests := []Request{
		{URL: "http://a.example", Profile: "chrome", OutputPath: filepath.Join(dir, "a.png")},
		{URL: "http://b.example", Profile: "ff40", OutputPath: filepath.Join(dir, "b.png")},
		{URL: "http://c.example", Profile: "android", OutputPath: filepath.Join(dir, "c.png")},
	}

	results := runner.Multiple(requests)
	if len(results) != len(requests) {
		t.Fatalf("Expected %d results, got %d", len(requests), len(results))
	}

	for i, result := range results {
		if result.Request.URL != requests[i].URL {
			t.Errorf("Expected result %d to keep request order, got %s", i, result.Request.URL)
		}
		if result.Abandoned {
			t.Errorf("Expected %s to succeed, got abandoned: %s", result.Request.URL, result.Detail)
		}
		if _, err := os.Stat(requests[i].OutputPath); err != nil {
			t.Errorf("Expected artifact for %s: %v", result.Request.URL, err)
		}
	}
}

func TestMultipleStream(t *testing.T) {
	client := &scriptedClient{outcomes: []browshot.Outcome{success(bytes.Repeat([]byte("s"), 1024))}}
	runner := newTestRunner(t, client)

	dir := t.TempDir()
	requests := []Request{
		{URL: "http://a.example", Profile: "chrome", OutputPath: filepath.Join(dir, "a.png")},
		{URL: "http://b.example", Profile: "chrome", OutputPath: filepath.Join(dir, "b.png")},
	}

	resultsChan := make(chan Result)
	go runner.MultipleStream(resultsChan, requests...)

	var count int
	for result := range resultsChan {
		count++
		if result.Abandoned {
			t.Errorf("Expected %s to succeed", result.Request.URL)
		}
	}
	if count != len(requests) {
		t.Errorf("Expected %d streamed results, got %d", len(requests), count)
	}
}
