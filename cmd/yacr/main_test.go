package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/frederic-klein/yacr/internal/driver"
	"github.com/frederic-klein/yacr/internal/recipe"
	"github.com/frederic-klein/yacr/internal/resolver"
)

// run executes the CLI with an isolated home folder.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRecipesCommand(t *testing.T) {
	out, err := run(t, "recipes")
	if err != nil {
		t.Fatalf("recipes error = %v", err)
	}
	for _, want := range []string{"jwt-cpp", "picojson", "vsg", "1.0.3, 1.0.0"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestResolveCommand(t *testing.T) {
	// Arrange
	args := []string{"resolve", "vsg/1.0.3",
		"-s", "os=Linux", "-s", "compiler=gcc", "-s", "compiler.version=9",
		"-o", "vsg:max_devices=3",
	}

	// Act
	out, err := run(t, args...)

	// Assert
	if err != nil {
		t.Fatalf("resolve error = %v", err)
	}
	for _, want := range []string{"VSG_MAX_DEVICES", "VSG_SUPPORTS_ShaderCompiler", "BUILD_SHARED_LIBS", "OFF", "max_devices", "3"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "USE_MSVC_RUNTIME_LIBRARY_DLL") {
		t.Errorf("runtime parameter shown for gcc:\n%s", out)
	}
}

func TestResolveCommand_Rejected(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want error
	}{
		{
			name: "old gcc",
			args: []string{"-s", "os=Linux", "-s", "compiler=gcc", "-s", "compiler.version=6"},
			want: resolver.ErrUnsupportedStandard,
		},
		{
			name: "static msvc runtime",
			args: []string{"-s", "os=Windows", "-s", "compiler=msvc", "-s", "compiler.version=193", "-s", "compiler.runtime=static"},
			want: resolver.ErrUnsupportedRuntimeMode,
		},
		{
			name: "unknown option",
			args: []string{"-s", "os=Linux", "-s", "compiler=gcc", "-s", "compiler.version=9", "-o", "vsg:lto=True"},
			want: resolver.ErrUnknownOption,
		},
		{
			name: "unknown global option",
			args: []string{"-s", "os=Linux", "-s", "compiler=gcc", "-s", "compiler.version=9", "-o", "with_tests=True"},
			want: resolver.ErrUnknownOption,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, append([]string{"resolve", "vsg/1.0.3"}, tt.args...)...)
			if !errors.Is(err, tt.want) {
				t.Errorf("resolve error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestResolveCommand_Versions(t *testing.T) {
	settings := []string{"-s", "os=Linux", "-s", "compiler=gcc", "-s", "compiler.version=9"}

	// a bare name picks the newest version
	out, err := run(t, append([]string{"resolve", "vsg"}, settings...)...)
	if err != nil {
		t.Fatalf("resolve error = %v", err)
	}
	if !strings.Contains(out, "vsg/1.0.3 can be built") {
		t.Errorf("unexpected output:\n%s", out)
	}

	if _, err := run(t, append([]string{"resolve", "vsg/9.9.9"}, settings...)...); !errors.Is(err, driver.ErrNoSource) {
		t.Errorf("resolve vsg/9.9.9 error = %v, want ErrNoSource", err)
	}
	if _, err := run(t, append([]string{"resolve", "zlib"}, settings...)...); !errors.Is(err, driver.ErrNoRecipe) {
		t.Errorf("resolve zlib error = %v, want ErrNoRecipe", err)
	}
}

func TestResolveCommand_Profile(t *testing.T) {
	profile := filepath.Join(t.TempDir(), "msvc.yaml")
	content := `settings:
  os: Windows
  compiler: Visual Studio
  compiler.version: "14"
  compiler.runtime: MD
`
	if err := os.WriteFile(profile, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := run(t, "resolve", "vsg/1.0.3", "--profile", profile)
	if !errors.Is(err, resolver.ErrToolchainTooOld) {
		t.Errorf("resolve error = %v, want ToolchainTooOld", err)
	}
}

func TestGraphCommand_RequirementsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "yacrfile.txt")
	if err := os.WriteFile(path, []byte("[requires]\njwt-cpp/0.4.0\n"), 0644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "graph", "-f", path)
	if err != nil {
		t.Fatalf("graph error = %v", err)
	}

	// the reference is the second column of each row
	var order []string
	for _, l := range strings.Split(out, "\n") {
		fields := strings.Fields(l)
		if len(fields) > 2 && strings.Contains(fields[2], "/") {
			order = append(order, fields[2])
		}
	}
	if diff := cmp.Diff([]string{"picojson/1.3.0", "openssl/1.1.1d", "jwt-cpp/0.4.0"}, order); diff != "" {
		t.Errorf("graph order mismatch (-want +got):\n%s\n%s", diff, out)
	}
	if !strings.Contains(out, "external") {
		t.Errorf("openssl not marked external:\n%s", out)
	}
}

func TestInfoCommand_Empty(t *testing.T) {
	out, err := run(t, "info", "vsg/1.0.3")
	if err != nil {
		t.Fatalf("info error = %v", err)
	}
	if !strings.Contains(out, "No packages for vsg/1.0.3") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestRoots(t *testing.T) {
	optionPairs = []string{"vsg:shared=True"}
	t.Cleanup(func() { optionPairs = nil })

	refs, assignments, err := roots([]string{"vsg/1.0.3"})
	if err != nil {
		t.Fatalf("roots() error = %v", err)
	}
	if diff := cmp.Diff([]recipe.Ref{{Name: "vsg", Version: "1.0.3"}}, refs); diff != "" {
		t.Errorf("refs mismatch (-want +got):\n%s", diff)
	}
	if assignments.Scoped["vsg"]["shared"] != "True" {
		t.Errorf("assignments = %+v, want vsg:shared=True", assignments)
	}

	if _, _, err := roots([]string{"vsg"}); err == nil {
		t.Error("roots() should fail for an invalid reference")
	}
}
