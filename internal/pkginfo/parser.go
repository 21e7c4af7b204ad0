package pkginfo

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/frederic-klein/yacr/internal/options"
)

var (
	sectionRe = regexp.MustCompile(`^\[(\w+)\]$`)
	pairRe    = regexp.MustCompile(`^([^=\s]+)=(.*)$`)
)

// Parser reads package info files.
type Parser struct {
	r io.Reader
}

// NewParser creates a new package info parser.
func NewParser(r io.Reader) *Parser {
	return &Parser{r: r}
}

// Parse reads a package info file.
func (p *Parser) Parse() (*Info, error) {
	info := &Info{
		Settings: map[string]string{},
		Options:  options.Values{},
	}
	section := ""

	scanner := bufio.NewScanner(p.r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if matches := sectionRe.FindStringSubmatch(line); matches != nil {
			section = matches[1]
			continue
		}

		switch section {
		case "settings", "options":
			matches := pairRe.FindStringSubmatch(line)
			if matches == nil {
				return nil, fmt.Errorf("invalid %s entry %q", section, line)
			}
			if section == "settings" {
				info.Settings[matches[1]] = matches[2]
			} else {
				info.Options[matches[1]] = matches[2]
			}
		case "requires":
			info.Requires = append(info.Requires, line)
		case "package_id":
			info.PackageID = line
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading package info: %w", err)
	}

	return info, nil
}
