// Package helpdocs loads the help-center catalog that analysis results may link to.
package helpdocs

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	contextutils "triageapp/internal/utils"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Article is one help-center page
type Article struct {
	ID      string `yaml:"id" json:"id"`
	Title   string `yaml:"title" json:"title"`
	Summary string `yaml:"summary" json:"summary"`
}

// Section groups articles
type Section struct {
	ID       string    `yaml:"id" json:"id"`
	Title    string    `yaml:"title" json:"title"`
	Articles []Article `yaml:"articles" json:"articles"`
}

// Catalog is the full help center
type Catalog struct {
	Sections []Section `yaml:"sections" json:"sections"`
}

// Default returns the catalog compiled into the binary
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded help catalog is invalid: %v", err))
	}
	return c
}

// Load reads a catalog file, or returns the embedded catalog when path is empty
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, contextutils.WrapErrorf(err, "failed to read help catalog %s", path)
	}
	return Parse(data)
}

// Parse decodes and checks a YAML catalog
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, contextutils.WrapError(err, "failed to parse help catalog")
	}
	seen := make(map[string]bool)
	for _, s := range c.Sections {
		if s.ID == "" {
			return nil, contextutils.WrapError(contextutils.ErrInvalidInput, "help catalog section without id")
		}
		for _, a := range s.Articles {
			key := s.ID + "/" + a.ID
			if a.ID == "" || seen[key] {
				return nil, contextutils.WrapErrorf(contextutils.ErrInvalidInput, "invalid or duplicate help article %q", key)
			}
			seen[key] = true
		}
	}
	return &c, nil
}

// Lookup finds an article by section and article id
func (c *Catalog) Lookup(sectionID, articleID string) (Section, Article, bool) {
	for _, s := range c.Sections {
		if s.ID != sectionID {
			continue
		}
		for _, a := range s.Articles {
			if a.ID == articleID {
				return s, a, true
			}
		}
	}
	return Section{}, Article{}, false
}

// Listing renders the catalog as one line per article for inclusion in a prompt
func (c *Catalog) Listing() string {
	var b strings.Builder
	for _, s := range c.Sections {
		for _, a := range s.Articles {
			fmt.Fprintf(&b, "- sectionId=%s articleId=%s: %s / %s. %s\n", s.ID, a.ID, s.Title, a.Title, a.Summary)
		}
	}
	return b.String()
}

// Len returns the number of articles
func (c *Catalog) Len() int {
	n := 0
	for _, s := range c.Sections {
		n += len(s.Articles)
	}
	return n
}
