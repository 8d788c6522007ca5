package doctor_test

import (
	"strings"
	"testing"

	"github.com/example/go-bpe-tokenizer/internal/doctor"
	"github.com/example/go-bpe-tokenizer/internal/testutil"
	"github.com/example/go-bpe-tokenizer/internal/vocabfile"
)

// ---------------------------------------------------------------------------
// all-pass scenario
// ---------------------------------------------------------------------------

func TestRun_AllChecksPass(t *testing.T) {
	vocabPath, mergesPath := testutil.WriteFixture(t, testutil.Fixture())

	var out strings.Builder
	result := doctor.Run(doctor.Config{VocabPath: vocabPath, MergesPath: mergesPath}, &out)

	if result.Failed() {
		t.Errorf("expected all checks to pass; failures: %v", result.Failures())
	}

	body := out.String()
	for _, want := range []string{
		"all 256 byte symbols present",
		"merge results: all in vocabulary",
		"id layout: dense 0..272",
		"round trip: ok",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("output missing %q:\n%s", want, body)
		}
	}

	if strings.Contains(body, doctor.FailMark) {
		t.Errorf("output should not contain fail marker:\n%s", body)
	}
}

func TestRun_GzipTablesPass(t *testing.T) {
	vocabPath, mergesPath := testutil.WriteGzipFixture(t, testutil.Fixture())

	var out strings.Builder
	result := doctor.Run(doctor.Config{VocabPath: vocabPath, MergesPath: mergesPath}, &out)

	if result.Failed() {
		t.Errorf("expected gzip tables to pass; failures: %v", result.Failures())
	}
}

// ---------------------------------------------------------------------------
// missing files
// ---------------------------------------------------------------------------

func TestRun_MissingFilesFail(t *testing.T) {
	loadCalled := false
	cfg := doctor.Config{
		VocabPath:  "/nonexistent/vocab.json",
		MergesPath: "/nonexistent/merges.txt",
		Load: func(string, string, vocabfile.MergesOptions) (*vocabfile.Tables, error) {
			loadCalled = true
			return nil, errLoad
		},
	}

	var out strings.Builder
	result := doctor.Run(cfg, &out)

	if !result.Failed() {
		t.Fatal("expected failure for missing files")
	}

	if len(result.Failures()) != 2 {
		t.Errorf("want 2 failures, got %v", result.Failures())
	}

	if !hasFailureContaining(result.Failures(), "merges file") {
		t.Errorf("expected failure mentioning merges file, got: %v", result.Failures())
	}

	if loadCalled {
		t.Error("Load should not run when files are missing")
	}
}

// ---------------------------------------------------------------------------
// load failure
// ---------------------------------------------------------------------------

func TestRun_LoadFailureStopsChecks(t *testing.T) {
	vocabPath, mergesPath := testutil.WriteFixture(t, testutil.Fixture())
	cfg := doctor.Config{
		VocabPath:  vocabPath,
		MergesPath: mergesPath,
		Load: func(string, string, vocabfile.MergesOptions) (*vocabfile.Tables, error) {
			return nil, errLoad
		},
	}

	var out strings.Builder
	result := doctor.Run(cfg, &out)

	if !hasFailureContaining(result.Failures(), "load tables") {
		t.Fatalf("expected load failure, got: %v", result.Failures())
	}

	if strings.Contains(out.String(), "byte coverage") {
		t.Errorf("byte coverage should not run after load failure:\n%s", out.String())
	}
}

func TestRun_MergesPolicyIsForwarded(t *testing.T) {
	fx := testutil.Fixture()
	vocabPath, _ := testutil.WriteFixture(t, fx)
	// No trailing newline after the final rule.
	text := strings.TrimSuffix(testutil.MergesText(fx.Merges), "\n")
	mergesPath := testutil.WriteFile(t, "merges.txt", []byte(text))

	cfg := doctor.Config{
		VocabPath:  vocabPath,
		MergesPath: mergesPath,
		Merges:     vocabfile.MergesOptions{Trailer: vocabfile.TrailerRequire},
	}

	var out strings.Builder
	result := doctor.Run(cfg, &out)

	if !hasFailureContaining(result.Failures(), "trailing newline") {
		t.Errorf("expected trailer failure, got: %v", result.Failures())
	}
}

// ---------------------------------------------------------------------------
// table consistency
// ---------------------------------------------------------------------------

func TestRun_MissingByteSymbolFails(t *testing.T) {
	fx := testutil.Fixture()
	delete(fx.Vocab, "Ġ")
	vocabPath, mergesPath := testutil.WriteFixture(t, fx)

	var out strings.Builder
	result := doctor.Run(doctor.Config{VocabPath: vocabPath, MergesPath: mergesPath}, &out)

	if !hasFailureContaining(result.Failures(), "byte coverage") {
		t.Errorf("expected byte coverage failure, got: %v", result.Failures())
	}

	if !hasFailureContaining(result.Failures(), "0x20") {
		t.Errorf("expected failure naming byte 0x20, got: %v", result.Failures())
	}

	if !hasFailureContaining(result.Failures(), "round trip") {
		t.Errorf("expected round trip failure, got: %v", result.Failures())
	}

	if !strings.Contains(out.String(), "id layout: sparse") {
		t.Errorf("expected sparse id layout:\n%s", out.String())
	}
}

func TestRun_OrphanMergeFails(t *testing.T) {
	fx := testutil.Fixture()
	delete(fx.Vocab, "Ġworld")
	vocabPath, mergesPath := testutil.WriteFixture(t, fx)

	var out strings.Builder
	result := doctor.Run(doctor.Config{VocabPath: vocabPath, MergesPath: mergesPath, SkipRoundTrip: true}, &out)

	if !hasFailureContaining(result.Failures(), "Ġwor ld") {
		t.Errorf("expected failure naming the orphan merge, got: %v", result.Failures())
	}

	if !strings.Contains(out.String(), "round trip: skipped") {
		t.Errorf("expected round trip to be skipped:\n%s", out.String())
	}
}

func TestRun_OutputContainsPassAndFailMarkers(t *testing.T) {
	fx := testutil.Fixture()
	delete(fx.Vocab, "He")
	vocabPath, mergesPath := testutil.WriteFixture(t, fx)

	var out strings.Builder
	doctor.Run(doctor.Config{VocabPath: vocabPath, MergesPath: mergesPath}, &out)

	body := out.String()
	if !strings.Contains(body, doctor.PassMark) {
		t.Errorf("output missing pass marker %q:\n%s", doctor.PassMark, body)
	}

	if !strings.Contains(body, doctor.FailMark) {
		t.Errorf("output missing fail marker %q:\n%s", doctor.FailMark, body)
	}
}

func TestResult_AddFailure(t *testing.T) {
	var r doctor.Result
	if r.Failed() {
		t.Fatal("zero Result should not be failed")
	}

	r.AddFailure("external check")
	if !r.Failed() || r.Failures()[0] != "external check" {
		t.Errorf("Failures() = %v; want [external check]", r.Failures())
	}
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

type sentinelError string

func (e sentinelError) Error() string { return string(e) }

var errLoad = sentinelError("load failed")

func hasFailureContaining(failures []string, substr string) bool {
	substr = strings.ToLower(substr)
	for _, f := range failures {
		if strings.Contains(strings.ToLower(f), substr) {
			return true
		}
	}

	return false
}
