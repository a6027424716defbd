package project

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
)

// Detection identifies a project's toolchain and, when one applies, the
// command that starts its dev server. The zero value means "unrecognized".
type Detection struct {
	Type          string `json:"type,omitempty"`
	ServerCommand string `json:"server_command,omitempty"`
}

// packageManifest is the slice of package.json the detector cares about.
type packageManifest struct {
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
	Scripts         map[string]string `json:"scripts"`
}

// composerManifest is the slice of composer.json the detector cares about.
type composerManifest struct {
	Require    map[string]string `json:"require"`
	RequireDev map[string]string `json:"require-dev"`
}

// Detect classifies the project at path. Rules are ordered most-specific
// first: a framework in package.json wins over the generic node fallback,
// and manifest kinds are tried in a fixed priority order.
func Detect(path string) Detection {
	exists := func(name string) bool {
		_, err := os.Stat(filepath.Join(path, name))
		return err == nil
	}

	if exists("package.json") {
		return detectNode(path)
	}

	if exists("deno.json") || exists("deno.jsonc") {
		return Detection{Type: "deno", ServerCommand: "deno task dev"}
	}
	if exists("bunfig.toml") {
		return Detection{Type: "bun", ServerCommand: "bun run dev"}
	}

	if exists("Gemfile") {
		return detectRuby(path)
	}

	if exists("requirements.txt") || exists("pyproject.toml") || exists("Pipfile") || exists("setup.py") {
		return detectPython(path, exists)
	}

	if exists("go.mod") {
		return Detection{Type: "go", ServerCommand: "go run ."}
	}
	if exists("Cargo.toml") {
		return Detection{Type: "rust", ServerCommand: "cargo run"}
	}

	if exists("pom.xml") {
		return Detection{Type: "maven", ServerCommand: "mvn spring-boot:run"}
	}
	if exists("build.gradle") || exists("build.gradle.kts") {
		return Detection{Type: "gradle", ServerCommand: "./gradlew bootRun"}
	}

	if exists("composer.json") {
		return detectPHP(path, exists)
	}
	if exists("wp-config.php") {
		return Detection{Type: "wordpress"}
	}

	if matched, _ := doublestar.Glob(os.DirFS(path), "*.{csproj,sln}"); len(matched) > 0 {
		return Detection{Type: "dotnet", ServerCommand: "dotnet run"}
	}

	if exists("pubspec.yaml") {
		return detectDart(path)
	}

	if exists("mix.exs") {
		src := readProjectFile(path, "mix.exs")
		if strings.Contains(src, "phoenix") {
			return Detection{Type: "phoenix", ServerCommand: "mix phx.server"}
		}
		return Detection{Type: "elixir", ServerCommand: "mix run"}
	}

	if exists("Package.swift") {
		return Detection{Type: "swift", ServerCommand: "swift run"}
	}
	if exists("build.zig") {
		return Detection{Type: "zig", ServerCommand: "zig build run"}
	}
	if exists("CMakeLists.txt") {
		return Detection{Type: "cmake"}
	}
	if exists("Makefile") || exists("makefile") {
		return Detection{Type: "make"}
	}

	return Detection{}
}

// HasInstructions reports whether the project carries a CLAUDE.md agent
// instructions file at its root.
func HasInstructions(path string) bool {
	_, err := os.Stat(filepath.Join(path, "CLAUDE.md"))
	return err == nil
}

// nodeRules map a package.json dependency to a detection, most specific
// first. Meta-frameworks and build tools come before server frameworks so a
// Next.js app using express internally still reads as next.
var nodeRules = []struct {
	dep       string
	detection Detection
}{
	{"next", Detection{Type: "next", ServerCommand: "npm run dev"}},
	{"@remix-run/react", Detection{Type: "remix", ServerCommand: "npm run dev"}},
	{"@remix-run/node", Detection{Type: "remix", ServerCommand: "npm run dev"}},
	{"astro", Detection{Type: "astro", ServerCommand: "npm run dev"}},
	{"gatsby", Detection{Type: "gatsby", ServerCommand: "npm run develop"}},
	{"nuxt", Detection{Type: "nuxt", ServerCommand: "npm run dev"}},
	{"@angular/core", Detection{Type: "angular", ServerCommand: "ng serve"}},
	{"svelte", Detection{Type: "svelte", ServerCommand: "npm run dev"}},
	{"@sveltejs/kit", Detection{Type: "svelte", ServerCommand: "npm run dev"}},
	{"vite", Detection{Type: "vite", ServerCommand: "npm run dev"}},
	{"react-scripts", Detection{Type: "cra", ServerCommand: "npm start"}},
	{"expo", Detection{Type: "expo", ServerCommand: "npx expo start"}},
	{"react-native", Detection{Type: "react-native", ServerCommand: "npm start"}},
}

// nodeServerRules follow the electron check; an electron app bundling a
// server framework is still an electron app.
var nodeServerRules = []struct {
	dep       string
	detection Detection
}{
	{"@nestjs/core", Detection{Type: "nestjs", ServerCommand: "npm run start:dev"}},
	{"fastify", Detection{Type: "fastify", ServerCommand: "npm run dev"}},
	{"hono", Detection{Type: "hono", ServerCommand: "npm run dev"}},
}

func detectNode(path string) Detection {
	raw, err := os.ReadFile(filepath.Join(path, "package.json"))
	if err != nil {
		return Detection{}
	}
	var pkg packageManifest
	if err := sonic.Unmarshal(raw, &pkg); err != nil {
		return Detection{}
	}

	deps := make(map[string]bool, len(pkg.Dependencies)+len(pkg.DevDependencies))
	for d := range pkg.Dependencies {
		deps[d] = true
	}
	for d := range pkg.DevDependencies {
		deps[d] = true
	}

	for _, rule := range nodeRules {
		if deps[rule.dep] {
			return rule.detection
		}
	}

	hasDev := pkg.Scripts["dev"] != ""
	if deps["electron"] {
		d := Detection{Type: "electron"}
		if hasDev {
			d.ServerCommand = "npm run dev"
		}
		return d
	}
	for _, rule := range nodeServerRules {
		if deps[rule.dep] {
			return rule.detection
		}
	}
	if deps["express"] || deps["koa"] {
		t := "express"
		if deps["koa"] {
			t = "koa"
		}
		cmd := "npm start"
		if hasDev {
			cmd = "npm run dev"
		}
		return Detection{Type: t, ServerCommand: cmd}
	}

	if hasDev {
		return Detection{Type: "node", ServerCommand: "npm run dev"}
	}
	if pkg.Scripts["start"] != "" {
		return Detection{Type: "node", ServerCommand: "npm start"}
	}
	return Detection{Type: "node"}
}

func detectRuby(path string) Detection {
	gemfile := readProjectFile(path, "Gemfile")
	switch {
	case strings.Contains(gemfile, "rails"):
		return Detection{Type: "rails", ServerCommand: "bin/rails server"}
	case strings.Contains(gemfile, "sinatra"):
		return Detection{Type: "sinatra", ServerCommand: "ruby app.rb"}
	case strings.Contains(gemfile, "jekyll"):
		return Detection{Type: "jekyll", ServerCommand: "bundle exec jekyll serve"}
	}
	return Detection{Type: "ruby"}
}

func detectPython(path string, exists func(string) bool) Detection {
	if exists("manage.py") {
		return Detection{Type: "django", ServerCommand: "python manage.py runserver"}
	}

	reqs := readProjectFile(path, "requirements.txt") +
		readProjectFile(path, "Pipfile") +
		pyprojectDependencies(path)

	switch {
	case strings.Contains(reqs, "fastapi"):
		return Detection{Type: "fastapi", ServerCommand: "uvicorn main:app --reload"}
	case strings.Contains(reqs, "flask"):
		return Detection{Type: "flask", ServerCommand: "flask run"}
	case strings.Contains(reqs, "streamlit"):
		return Detection{Type: "streamlit", ServerCommand: "streamlit run app.py"}
	case strings.Contains(reqs, "gradio"):
		return Detection{Type: "gradio", ServerCommand: "python app.py"}
	case strings.Contains(reqs, "celery"):
		return Detection{Type: "celery"}
	case strings.Contains(reqs, "scrapy"):
		return Detection{Type: "scrapy"}
	}
	return Detection{Type: "python"}
}

// pyprojectDependencies flattens the dependency declarations of a
// pyproject.toml (PEP 621 project.dependencies plus poetry's table) into a
// single searchable string.
func pyprojectDependencies(path string) string {
	raw, err := os.ReadFile(filepath.Join(path, "pyproject.toml"))
	if err != nil {
		return ""
	}

	var manifest struct {
		Project struct {
			Dependencies []string `toml:"dependencies"`
		} `toml:"project"`
		Tool struct {
			Poetry struct {
				Dependencies map[string]interface{} `toml:"dependencies"`
			} `toml:"poetry"`
		} `toml:"tool"`
	}
	if err := toml.Unmarshal(raw, &manifest); err != nil {
		// Unparseable manifest still carries signal as plain text.
		return string(raw)
	}

	var b strings.Builder
	for _, dep := range manifest.Project.Dependencies {
		b.WriteString(dep)
		b.WriteByte('\n')
	}
	for dep := range manifest.Tool.Poetry.Dependencies {
		b.WriteString(dep)
		b.WriteByte('\n')
	}
	return b.String()
}

func detectPHP(path string, exists func(string) bool) Detection {
	raw, err := os.ReadFile(filepath.Join(path, "composer.json"))
	if err != nil {
		return Detection{}
	}
	var composer composerManifest
	if err := sonic.Unmarshal(raw, &composer); err != nil {
		return Detection{}
	}

	requires := func(pkg string) bool {
		_, a := composer.Require[pkg]
		_, b := composer.RequireDev[pkg]
		return a || b
	}
	switch {
	case requires("laravel/framework"):
		return Detection{Type: "laravel", ServerCommand: "php artisan serve"}
	case requires("symfony/framework-bundle"):
		return Detection{Type: "symfony", ServerCommand: "symfony serve"}
	case exists("wp-config.php") || exists("wp-content"):
		return Detection{Type: "wordpress"}
	}
	return Detection{Type: "php", ServerCommand: "php -S localhost:8000"}
}

// detectDart distinguishes flutter apps from plain dart packages by the
// flutter dependency in pubspec.yaml. An unreadable pubspec still counts as
// flutter, the far more common case.
func detectDart(path string) Detection {
	raw, err := os.ReadFile(filepath.Join(path, "pubspec.yaml"))
	if err != nil {
		return Detection{Type: "flutter", ServerCommand: "flutter run"}
	}

	var pubspec struct {
		Dependencies map[string]interface{} `yaml:"dependencies"`
	}
	if err := yaml.Unmarshal(raw, &pubspec); err != nil {
		return Detection{Type: "flutter", ServerCommand: "flutter run"}
	}
	if _, ok := pubspec.Dependencies["flutter"]; ok {
		return Detection{Type: "flutter", ServerCommand: "flutter run"}
	}
	return Detection{Type: "dart", ServerCommand: "dart run"}
}

func readProjectFile(path, name string) string {
	data, err := os.ReadFile(filepath.Join(path, name))
	if err != nil {
		return ""
	}
	return string(data)
}
