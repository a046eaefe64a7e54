package config

import (
	"path/filepath"
	"strings"
)

// WatchRules returns the configured watch rules, or rules derived from the
// manifest when none are configured. Patterns are slash-separated and
// relative to the project root.
func (c *Config) WatchRules(m *Manifest) []WatchRule {
	if len(c.Watch.Rules) > 0 {
		return c.Watch.Rules
	}

	modules := c.rel(c.ModulesPath())
	scriptsBase := m.Paths.SrcBase
	if scriptsBase == "" {
		scriptsBase = m.Paths.SrcJS
	}
	return []WatchRule{
		{Task: "scripts", Patterns: []string{
			join(c.rel(scriptsBase), "**/*.js"),
			join(modules, "**/*.js"),
		}},
		{Task: "styles:base", Patterns: []string{join(c.rel(m.Paths.SrcCSS), "**/*.scss")}},
		{Task: "styles:modules", Patterns: []string{join(modules, "**/*.scss")}},
		{Task: "images", Patterns: []string{join(c.rel(m.Paths.SrcImg), "**/*."+braceSet(c.Images.Extensions))}},
		{Task: "fonts", Patterns: []string{join(c.rel(m.Paths.SrcFont), "**/*."+braceSet(c.Fonts.Extensions))}},
	}
}

func (c *Config) rel(p string) string {
	r, err := filepath.Rel(c.Root, p)
	if err != nil {
		return filepath.ToSlash(p)
	}
	return filepath.ToSlash(r)
}

func join(dir, pattern string) string {
	if dir == "" || dir == "." {
		return pattern
	}
	return strings.TrimSuffix(dir, "/") + "/" + pattern
}

func braceSet(exts []string) string {
	if len(exts) == 1 {
		return exts[0]
	}
	return "{" + strings.Join(exts, ",") + "}"
}
