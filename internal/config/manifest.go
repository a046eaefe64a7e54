package config

import (
	"os"
	"path/filepath"

	"github.com/Masterminds/semver/v3"
	"github.com/tidwall/gjson"

	ferrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
)

// Logical path names read from the manifest's "paths" object.
const (
	PathSrcBase   = "src.base"
	PathSrcJS     = "src.js"
	PathSrcCSS    = "src.css"
	PathSrcImg    = "src.img"
	PathSrcFont   = "src.font"
	PathBuildBase = "build.base"
	PathBuildJS   = "build.js"
	PathBuildCSS  = "build.css"
	PathBuildImg  = "build.img"
	PathBuildFont = "build.font"
	PathPublic    = "public"
)

var requiredPaths = []string{
	PathSrcJS, PathSrcCSS, PathSrcImg, PathSrcFont,
	PathBuildJS, PathBuildCSS, PathBuildImg, PathBuildFont,
	PathPublic,
}

var optionalPaths = []string{PathSrcBase, PathBuildBase}

// Paths maps logical names to absolute filesystem paths. Public is a URL
// path and is kept verbatim.
type Paths struct {
	SrcBase   string
	SrcJS     string
	SrcCSS    string
	SrcImg    string
	SrcFont   string
	BuildBase string
	BuildJS   string
	BuildCSS  string
	BuildImg  string
	BuildFont string
	Public    string
}

// Get returns the path for a logical name such as "build.css".
func (p Paths) Get(name string) (string, bool) {
	switch name {
	case PathSrcBase:
		return p.SrcBase, p.SrcBase != ""
	case PathSrcJS:
		return p.SrcJS, true
	case PathSrcCSS:
		return p.SrcCSS, true
	case PathSrcImg:
		return p.SrcImg, true
	case PathSrcFont:
		return p.SrcFont, true
	case PathBuildBase:
		return p.BuildBase, p.BuildBase != ""
	case PathBuildJS:
		return p.BuildJS, true
	case PathBuildCSS:
		return p.BuildCSS, true
	case PathBuildImg:
		return p.BuildImg, true
	case PathBuildFont:
		return p.BuildFont, true
	case PathPublic:
		return p.Public, true
	}
	return "", false
}

// BuildDirs returns the configured build directories, base first when set.
func (p Paths) BuildDirs() []string {
	if p.BuildBase != "" {
		return []string{p.BuildBase}
	}
	return []string{p.BuildJS, p.BuildCSS, p.BuildImg, p.BuildFont}
}

// Manifest is the read-only view of package.json.
type Manifest struct {
	Name    string
	Version string
	SemVer  *semver.Version
	Paths   Paths
	Dir     string
}

// LoadManifest reads package.json once. Any problem is a fatal config error.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ferrors.ConfigError("manifest not found").Fatal().
				WithContext("path", path).Build()
		}
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "read manifest").Fatal().
			WithContext("path", path).Build()
	}
	if !gjson.ValidBytes(data) {
		return nil, ferrors.ConfigError("manifest is not valid JSON").Fatal().
			WithContext("path", path).Build()
	}

	doc := gjson.ParseBytes(data)
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "resolve manifest path").Build()
	}
	m := &Manifest{
		Name: doc.Get("name").String(),
		Dir:  filepath.Dir(abs),
	}

	version := doc.Get("version")
	if version.Type != gjson.String || version.String() == "" {
		return nil, ferrors.ConfigError("manifest has no version").Fatal().
			WithContext("path", path).Build()
	}
	sv, err := semver.StrictNewVersion(version.String())
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "manifest version is not a semantic version").Fatal().
			WithContext("path", path).WithContext("version", version.String()).Build()
	}
	m.Version = version.String()
	m.SemVer = sv

	values := make(map[string]string, len(requiredPaths)+len(optionalPaths))
	for _, key := range requiredPaths {
		v := doc.Get("paths." + key)
		if v.Type != gjson.String || v.String() == "" {
			return nil, ferrors.ConfigError("manifest is missing a required path").Fatal().
				WithContext("path", path).WithContext("key", "paths."+key).Build()
		}
		values[key] = v.String()
	}
	for _, key := range optionalPaths {
		if v := doc.Get("paths." + key); v.Type == gjson.String {
			values[key] = v.String()
		}
	}

	resolve := func(key string) string {
		v := values[key]
		if v == "" || filepath.IsAbs(v) {
			return v
		}
		return filepath.Join(m.Dir, v)
	}
	m.Paths = Paths{
		SrcBase:   resolve(PathSrcBase),
		SrcJS:     resolve(PathSrcJS),
		SrcCSS:    resolve(PathSrcCSS),
		SrcImg:    resolve(PathSrcImg),
		SrcFont:   resolve(PathSrcFont),
		BuildBase: resolve(PathBuildBase),
		BuildJS:   resolve(PathBuildJS),
		BuildCSS:  resolve(PathBuildCSS),
		BuildImg:  resolve(PathBuildImg),
		BuildFont: resolve(PathBuildFont),
		Public:    values[PathPublic],
	}
	return m, nil
}
