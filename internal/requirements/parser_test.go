package requirements

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/frederic-klein/yacr/internal/options"
	"github.com/frederic-klein/yacr/internal/recipe"
)

func TestParser_Parse(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		wantReqs    []recipe.Ref
		wantOptions options.Assignments
	}{
		{
			name:        "requires only",
			content:     "[requires]\nvsg/1.0.3\n",
			wantReqs:    []recipe.Ref{{Name: "vsg", Version: "1.0.3"}},
			wantOptions: options.Assignments{Global: options.Values{}, Scoped: map[string]options.Values{}},
		},
		{
			name: "requires and options",
			content: `[requires]
vsg/1.0.3
jwt-cpp/0.4.0

[options]
vsg:shared=True
vsg:max_devices=2
shared=False
`,
			wantReqs: []recipe.Ref{
				{Name: "vsg", Version: "1.0.3"},
				{Name: "jwt-cpp", Version: "0.4.0"},
			},
			wantOptions: options.Assignments{
				Global: options.Values{"shared": "False"},
				Scoped: map[string]options.Values{"vsg": {"shared": "True", "max_devices": "2"}},
			},
		},
		{
			name: "comments and unknown sections",
			content: `# consumer
[requires]
picojson/1.3.0  # header only

[generators]
cmake
`,
			wantReqs:    []recipe.Ref{{Name: "picojson", Version: "1.3.0"}},
			wantOptions: options.Assignments{Global: options.Values{}, Scoped: map[string]options.Values{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewParser().Parse(strings.NewReader(tt.content))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if diff := cmp.Diff(tt.wantReqs, got.Requires); diff != "" {
				t.Errorf("Requires mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantOptions, got.Options); diff != "" {
				t.Errorf("Options mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParser_Parse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad reference", "[requires]\nvsg\n"},
		{"duplicate", "[requires]\nvsg/1.0.0\nvsg/1.0.3\n"},
		{"outside section", "vsg/1.0.3\n"},
		{"bad option", "[options]\nvsg:shared\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewParser().Parse(strings.NewReader(tt.content)); err == nil {
				t.Error("Parse() should fail")
			}
		})
	}
}

func TestParser_ParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(path, []byte("[requires]\njwt-cpp/0.4.0\n"), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := NewParser().ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile() error = %v", err)
	}
	if len(got.Requires) != 1 || got.Requires[0].Name != "jwt-cpp" {
		t.Errorf("Requires = %v, want [jwt-cpp/0.4.0]", got.Requires)
	}

	if _, err := NewParser().ParseFile(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("ParseFile() should fail for a missing file")
	}
}
