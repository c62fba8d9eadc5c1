package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tomasbasham/cli-runtime/iooption"

	"github.com/tomasbasham/testgrid-gateway/internal/product"
)

func newTestStreams() (iooption.IOStreams, *bytes.Buffer, *bytes.Buffer) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	return iooption.IOStreams{In: strings.NewReader(""), Out: out, ErrOut: errOut}, out, errOut
}

func runCommand(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	streams, out, errOut := newTestStreams()
	cmd := NewRootCommandWithArgs(NewTestGridOptions(streams))
	cmd.SetArgs(args)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

// seedReports creates a product database and a local artefact tree holding a
// scenario report for wso2is.
func seedReports(t *testing.T) (dbPath, artifactDir string) {
	t.Helper()
	dir := t.TempDir()
	dbPath = filepath.Join(dir, "testgrid.db")
	artifactDir = filepath.Join(dir, "reports")

	repo, err := product.NewSQLiteRepository(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.Put(context.Background(), product.Product{ID: "1", Name: "wso2is"}, product.StatusSuccess); err != nil {
		t.Fatal(err)
	}
	repo.Close()

	reportDir := filepath.Join(artifactDir, "artifacts", "wso2is")
	if err := os.MkdirAll(reportDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(reportDir, "wso2is-SCENARIO.html"), []byte("<html>ok</html>"), 0o600); err != nil {
		t.Fatal(err)
	}
	return dbPath, artifactDir
}

func TestReportCommand_Stdout(t *testing.T) {
	db, dir := seedReports(t)

	out, _, err := runCommand(t, "report", "wso2is", "--group-by", "scenario",
		"--artifact-backend", "local", "--artifact-dir", dir, "--database", db)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "<html>ok</html>" {
		t.Errorf("stdout = %q", out)
	}
}

func TestReportCommand_OutFile(t *testing.T) {
	db, dir := seedReports(t)
	outPath := filepath.Join(t.TempDir(), "report.html")

	_, errOut, err := runCommand(t, "report", "wso2is", "--out", outPath,
		"--artifact-backend", "local", "--artifact-dir", dir, "--database", db)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "<html>ok</html>" {
		t.Errorf("file = %q", data)
	}
	if !strings.Contains(errOut, "wso2is-SCENARIO.html") {
		t.Errorf("stderr = %q", errOut)
	}
}

func TestReportCommand_Check(t *testing.T) {
	db, dir := seedReports(t)
	base := []string{"--artifact-backend", "local", "--artifact-dir", dir, "--database", db, "--check"}

	out, _, err := runCommand(t, append([]string{"report", "wso2is"}, base...)...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "exists") {
		t.Errorf("stdout = %q", out)
	}

	_, _, err = runCommand(t, append([]string{"report", "wso2is", "--group-by", "deployment"}, base...)...)
	if !errors.Is(err, ErrReportMissing) {
		t.Errorf("err = %v, want ErrReportMissing", err)
	}
}

func TestReportCommand_Errors(t *testing.T) {
	db, dir := seedReports(t)

	tests := map[string][]string{
		"missing product arg": {"report"},
		"invalid axis":        {"report", "wso2is", "--group-by", "platform", "--artifact-backend", "local", "--artifact-dir", dir},
		"unknown product":     {"report", "nope", "--artifact-backend", "local", "--artifact-dir", dir, "--database", db},
		"check with out":      {"report", "wso2is", "--check", "--out", "x.html", "--artifact-backend", "local", "--artifact-dir", dir},
		"local without dir":   {"report", "wso2is", "--artifact-backend", "local"},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			if _, _, err := runCommand(t, args...); err == nil {
				t.Error("expected error")
			}
		})
	}
}

// failingCloser accepts writes but fails on Close, like a file whose
// buffered data could not be flushed.
type failingCloser struct {
	bytes.Buffer
}

func (*failingCloser) Close() error { return errors.New("disk quota exceeded") }

func TestReportCommand_OutFileCloseError(t *testing.T) {
	db, dir := seedReports(t)

	orig := createFile
	t.Cleanup(func() { createFile = orig })
	sink := &failingCloser{}
	createFile = func(string) (io.WriteCloser, error) { return sink, nil }

	_, errOut, err := runCommand(t, "report", "wso2is", "--out", "report.html",
		"--artifact-backend", "local", "--artifact-dir", dir, "--database", db)
	if err == nil || !strings.Contains(err.Error(), "failed to close output file") {
		t.Fatalf("err = %v, want close failure", err)
	}
	if sink.String() != "<html>ok</html>" {
		t.Errorf("written = %q", sink.String())
	}
	if strings.Contains(errOut, "Wrote") {
		t.Errorf("success reported despite close failure: %q", errOut)
	}
}

func TestReportCommand_OutFileCreateError(t *testing.T) {
	db, dir := seedReports(t)
	outPath := filepath.Join(t.TempDir(), "missing", "report.html")

	_, _, err := runCommand(t, "report", "wso2is", "--out", outPath,
		"--artifact-backend", "local", "--artifact-dir", dir, "--database", db)
	if err == nil || !strings.Contains(err.Error(), "failed to create output file") {
		t.Fatalf("err = %v, want create failure", err)
	}
}

func writeProperties(t *testing.T, props map[string]string) string {
	t.Helper()
	var b strings.Builder
	for k, v := range props {
		fmt.Fprintf(&b, "%s: %q\n", k, v)
	}
	path := filepath.Join(t.TempDir(), "testgrid.yaml")
	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func newJenkins(t *testing.T, code int) *httptest.Server {
	t.Helper()
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(code)
	}))
	srv.Config.ErrorLog = log.New(io.Discard, "", 0)
	srv.StartTLS()
	t.Cleanup(srv.Close)
	return srv
}

func TestTriggerCommand(t *testing.T) {
	tests := map[string]struct {
		code    int
		policy  string
		wantErr bool
	}{
		"triggered":             {http.StatusCreated, "insecure-accept-all", false},
		"rejected":              {http.StatusForbidden, "insecure-accept-all", true},
		"untrusted certificate": {http.StatusCreated, "system", true},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			srv := newJenkins(t, tt.code)
			props := writeProperties(t, map[string]string{
				"JENKINS_HOST":        srv.URL,
				"JENKINS_USER":        "jenkins",
				"JENKINS_TOKEN":       "api-token",
				"JENKINS_BUILD_TOKEN": "build-token",
			})

			out, _, err := runCommand(t, "trigger", "wso2is-5.4.0", "--trust-policy", tt.policy, "--properties-file", props)
			if tt.wantErr != (err != nil) {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !strings.Contains(out, "Triggered wso2is-5.4.0") {
				t.Errorf("stdout = %q", out)
			}
		})
	}
}

func TestTriggerCommand_Validation(t *testing.T) {
	tests := map[string][]string{
		"missing job":    {"trigger"},
		"invalid job":    {"trigger", "../admin"},
		"unknown policy": {"trigger", "job", "--trust-policy", "trust-me"},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			if _, _, err := runCommand(t, args...); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestServeCommand_Validation(t *testing.T) {
	tests := map[string]struct {
		args []string
		want string
	}{
		"unknown policy":    {[]string{"serve", "--trust-policy", "trust-me"}, "unknown trust policy"},
		"unknown log level": {[]string{"serve", "--log-level", "loud"}, "unknown log level"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, _, err := runCommand(t, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, "debug", "json")
	if err != nil {
		t.Fatal(err)
	}
	logger.Debug("hello", "k", "v")
	if !strings.Contains(buf.String(), `"msg":"hello"`) {
		t.Errorf("output = %q", buf.String())
	}

	if _, err := newLogger(&buf, "loud", "text"); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, err := newLogger(&buf, "info", "xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}
