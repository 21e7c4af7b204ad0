package requirements

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/frederic-klein/yacr/internal/options"
	"github.com/frederic-klein/yacr/internal/recipe"
)

// FileName is the default requirements file name.
const FileName = "yacrfile.txt"

// Section is a [section] of a requirements file.
type Section string

const (
	SectionRequires Section = "requires"
	SectionOptions  Section = "options"
)

// File is a parsed requirements file.
type File struct {
	Requires []recipe.Ref
	Options  options.Assignments
}

var sectionRe = regexp.MustCompile(`^\[(\w+)\]$`)

// Parser parses yacrfile.txt requirements.
type Parser struct{}

// NewParser creates a new requirements parser.
func NewParser() *Parser {
	return &Parser{}
}

// ParseFile parses the requirements file at path.
func (p *Parser) ParseFile(path string) (*File, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening requirements: %w", err)
	}
	defer file.Close()
	return p.Parse(file)
}

// Parse reads requirements from r.
func (p *Parser) Parse(r io.Reader) (*File, error) {
	result := &File{}
	var section Section
	var assignments []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if matches := sectionRe.FindStringSubmatch(line); matches != nil {
			section = Section(strings.ToLower(matches[1]))
			continue
		}

		switch section {
		case SectionRequires:
			ref, err := recipe.ParseRef(line)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			if seen[ref.Name] {
				return nil, fmt.Errorf("line %d: %s required twice", lineNo, ref.Name)
			}
			seen[ref.Name] = true
			result.Requires = append(result.Requires, ref)
		case SectionOptions:
			assignments = append(assignments, line)
		case "":
			return nil, fmt.Errorf("line %d: entry outside of a section", lineNo)
		default:
			// unknown sections are ignored
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading requirements: %w", err)
	}

	opts, err := options.ParseAssignments(assignments)
	if err != nil {
		return nil, err
	}
	result.Options = opts
	return result, nil
}
