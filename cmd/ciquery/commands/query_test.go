package commands

import (
	"testing"

	"ciquery/internal/query"

	"github.com/google/go-cmp/cmp"
)

func TestCollectFilters(t *testing.T) {
	err := queryCmd.ParseFlags([]string{
		"--jobs",
		"--build-status=failure,aborted",
		"--tests=test_a,test_b",
		"--controllers=>=3",
		"--dvr",
	})
	if err != nil {
		t.Fatal(err)
	}
	args, err := query.ParseArgs(collectFilters(queryCmd))
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]string{"build_status", "controllers", "dvr", "jobs", "tests"}, args.Names()); diff != "" {
		t.Errorf("filters (-want +got):\n%s", diff)
	}
	if args["jobs"].HasValues() || args["dvr"].HasValues() {
		t.Error("bare flags carry values")
	}
	if diff := cmp.Diff([]string{"failure", "aborted"}, args.Values("build_status")); diff != "" {
		t.Errorf("build_status (-want +got):\n%s", diff)
	}
	// Patterns are never split on commas.
	if diff := cmp.Diff([]string{"test_a,test_b"}, args.Values("tests")); diff != "" {
		t.Errorf("tests (-want +got):\n%s", diff)
	}
	if got := args["controllers"].Ranges(); len(got) != 1 || got[0].String() != ">=3" {
		t.Errorf("controllers = %v", got)
	}
}
