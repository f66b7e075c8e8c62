package scaffolding

// ProjectTemplate describes one file written by the generator.
type ProjectTemplate struct {
	Path        string
	Description string
	Content     string
}

// TemplateContext holds the values project templates are rendered with.
type TemplateContext struct {
	Name      string
	Slug      string
	Namespace string
	Author    string
	Match     []string
	Date      string
	SourceDir string
	OutDir    string
}

// GetBuiltinTemplates returns the files written next to the configuration,
// keyed by template name.
func GetBuiltinTemplates() map[string]ProjectTemplate {
	return map[string]ProjectTemplate{
		"entry":     getEntryTemplate(),
		"gitignore": getGitignoreTemplate(),
		"readme":    getReadmeTemplate(),
	}
}

func getEntryTemplate() ProjectTemplate {
	return ProjectTemplate{
		Path:        "{{.SourceDir}}/index.js",
		Description: "Script entry point",
		Content: `// {{.Name}}
// Runs on:{{range .Match}} {{.}}{{end}}

const banner = document.createElement("div");
banner.textContent = "{{.Name}} is running";
banner.style.cssText =
  "position:fixed;bottom:8px;right:8px;padding:4px 8px;background:#222;color:#fff;font:12px sans-serif;z-index:2147483647";
document.body.appendChild(banner);

// Called by the development build before reloaded code runs.
window.__scriptsmithCleanup = () => banner.remove();
`,
	}
}

func getGitignoreTemplate() ProjectTemplate {
	return ProjectTemplate{
		Path:        ".gitignore",
		Description: "Ignore build output",
		Content: `{{.OutDir}}/
node_modules/
`,
	}
}

func getReadmeTemplate() ProjectTemplate {
	return ProjectTemplate{
		Path:        "README.md",
		Description: "Getting started notes",
		Content: `# {{.Name}}

Created {{.Date}}{{if .Author}} by {{.Author}}{{end}}.

    scriptsmith dev      # build, serve and reload on change
    scriptsmith build    # production build into {{.OutDir}}/{{.Slug}}.user.js

Open the install URL printed by ` + "`scriptsmith dev`" + ` in a browser with a
userscript manager to install the development build.
`,
	}
}
