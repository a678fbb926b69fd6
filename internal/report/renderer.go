package report

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"os"
	"strings"
	"time"

	"github.com/Masterminds/sprig"

	"github.com/MalasadaTech/masq-monitor/internal/logger"
	"github.com/MalasadaTech/masq-monitor/internal/query"
	"github.com/MalasadaTech/masq-monitor/internal/results"
	"github.com/MalasadaTech/masq-monitor/internal/tlp"
)

//go:embed templates/*.html templates/platforms/*.html
var templateFS embed.FS

// reportTemplate is the name of the outer document template.
const reportTemplate = "report"

// generatedAtLayout formats the report's generation stamp. It is the
// only time-dependent value in a rendered document; fixed inputs render
// byte-identical output.
const generatedAtLayout = "2006-01-02 15:04:05 MST"

// Config holds the renderer construction parameters.
type Config struct {
	// Registry maps results to partials; nil uses the standard registry.
	Registry *Registry
	// DefaultTemplatePath is the document-level outer template override.
	DefaultTemplatePath string
	// Logger defaults to a no-op logger.
	Logger logger.Interface
}

// Renderer turns result sets into HTML documents. It is stateless
// across renders and never mutates query or group state.
type Renderer struct {
	base                *template.Template
	registry            *Registry
	defaultTemplatePath string
	logger              logger.Interface
}

// funcs extends sprig's helpers with report-specific functions.
func funcs() template.FuncMap {
	fm := sprig.HtmlFuncMap()
	// Inline screenshots are data URIs; template.URL keeps the URL
	// sanitizer from escaping the base64 payload.
	fm["screenshotURI"] = func(b64 string) template.URL {
		return template.URL("data:image/png;base64," + b64)
	}
	return fm
}

// parseEmbedded parses a fresh copy of the embedded template set. The
// override chain needs un-executed copies because an html/template
// cannot be cloned or redefined once executed.
func parseEmbedded() (*template.Template, error) {
	t, err := template.New(reportTemplate).
		Funcs(funcs()).
		ParseFS(templateFS, "templates/*.html", "templates/platforms/*.html")
	if err != nil {
		return nil, fmt.Errorf("parsing embedded templates: %w", err)
	}
	return t, nil
}

// New parses the embedded template set and builds a renderer.
func New(cfg Config) (*Renderer, error) {
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry()
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNoOp()
	}

	base, err := parseEmbedded()
	if err != nil {
		return nil, err
	}

	return &Renderer{
		base:                base,
		registry:            cfg.Registry,
		defaultTemplatePath: cfg.DefaultTemplatePath,
		logger:              cfg.Logger.WithComponent("report"),
	}, nil
}

// QueryInput is one single-query render job.
type QueryInput struct {
	Query       *query.Query
	Results     []results.Result
	Ceiling     tlp.Level
	GeneratedAt time.Time
	Username    string
}

// GroupSection pairs one resolved leaf with its results, in the group's
// declared order.
type GroupSection struct {
	Query   *query.Query
	Results []results.Result
}

// GroupInput is one multi-section group render job.
type GroupInput struct {
	Group       *query.Group
	Sections    []GroupSection
	Ceiling     tlp.Level
	GeneratedAt time.Time
	Username    string
}

// RenderQuery renders a flat single-query report.
func (r *Renderer) RenderQuery(in QueryInput) (string, error) {
	sec, err := r.buildSection(in.Query, in.Results, in.Ceiling, false)
	if err != nil {
		return "", err
	}

	p := page{
		Title:       in.Query.Name,
		TLPLabel:    in.Ceiling.Label(),
		TLPClass:    tlpClass(in.Ceiling),
		GeneratedAt: in.GeneratedAt.UTC().Format(generatedAtLayout),
		Username:    in.Username,
		Total:       len(in.Results),
		Sections:    []section{sec},
	}

	return r.execute(in.Query.TemplatePath, p)
}

// RenderGroup renders a multi-section group report. Sections keep their
// input order, which the caller derives from the group's declared
// member order.
func (r *Renderer) RenderGroup(in GroupInput) (string, error) {
	p := page{
		Title:       SelectTitle(in.Group.Titles, in.Ceiling, in.Group.Name),
		TLPLabel:    in.Ceiling.Label(),
		TLPClass:    tlpClass(in.Ceiling),
		GeneratedAt: in.GeneratedAt.UTC().Format(generatedAtLayout),
		Username:    in.Username,
		IsGroup:     true,
		Meta:        buildMeta(&in.Group.Metadata, "", "", in.Ceiling),
	}

	for _, gs := range in.Sections {
		sec, err := r.buildSection(gs.Query, gs.Results, in.Ceiling, true)
		if err != nil {
			return "", err
		}
		p.Total += len(gs.Results)
		p.Sections = append(p.Sections, sec)
	}

	return r.execute(in.Group.TemplatePath, p)
}

// SelectTitle picks the highest-classified title visible under the
// ceiling, so a report always carries the most detailed title its
// audience is cleared for. With no visible title the fallback is used.
func SelectTitle(titles []tlp.Tagged, ceiling tlp.Level, fallback string) string {
	best := fallback
	bestRank := 0
	for _, t := range titles {
		if t.Value == "" || !t.Visible(ceiling) {
			continue
		}
		if r := tlp.Rank(t.Level); r > bestRank {
			best = t.Value
			bestRank = r
		}
	}
	return best
}

// page is the outer template's view model.
type page struct {
	Title       string
	TLPLabel    string
	TLPClass    string
	GeneratedAt string
	Username    string
	IsGroup     bool
	Total       int
	// Meta is the group-level metadata block; unset in single-query mode
	// where the sole section carries the metadata.
	Meta     metaView
	Sections []section
}

type section struct {
	Name       string
	ShowHeader bool
	Meta       metaView
	Count      int
	Results    []template.HTML
}

// metaView is a metadata block after TLP filtering. Every field here is
// safe to show under the report's ceiling.
type metaView struct {
	Query       string
	Description string
	Frequency   string
	Priority    string
	Notes       []string
	References  []string
	Tags        []string
}

func (m metaView) Empty() bool {
	return m.Query == "" && m.Description == "" && m.Frequency == "" && m.Priority == "" &&
		len(m.Notes) == 0 && len(m.References) == 0 && len(m.Tags) == 0
}

func (r *Renderer) buildSection(q *query.Query, rs []results.Result, ceiling tlp.Level, showHeader bool) (section, error) {
	sec := section{
		Name:       q.Name,
		ShowHeader: showHeader,
		Meta:       buildMeta(&q.Metadata, q.Query, string(q.QueryLevel), ceiling),
		Count:      len(rs),
	}

	for i := range rs {
		html, err := r.renderResult(&rs[i])
		if err != nil {
			return section{}, err
		}
		sec.Results = append(sec.Results, html)
	}

	return sec, nil
}

// renderResult executes the registry-selected partial for one result.
func (r *Renderer) renderResult(res *results.Result) (template.HTML, error) {
	partial := r.registry.Lookup(res.Platform, res.DataType)

	var buf bytes.Buffer
	if err := r.base.ExecuteTemplate(&buf, partial, res); err != nil {
		return "", fmt.Errorf("rendering %s result: %w", partial, err)
	}
	return template.HTML(buf.String()), nil
}

// buildMeta filters a metadata block down to what the ceiling permits.
func buildMeta(m *query.Metadata, queryString, queryLevel string, ceiling tlp.Level) metaView {
	var view metaView

	if queryString != "" && tlp.Visible(tlp.Level(queryLevel), ceiling) {
		view.Query = queryString
	}
	if m.Description.Value != "" && m.Description.Visible(ceiling) {
		view.Description = m.Description.Value
	}
	if m.Frequency.Value != "" && m.Frequency.Visible(ceiling) {
		view.Frequency = m.Frequency.Value
	}
	if m.Priority.Value != "" && m.Priority.Visible(ceiling) {
		view.Priority = m.Priority.Value
	}
	for _, note := range tlp.FilterVisible(m.Notes, ceiling) {
		if note.Value != "" {
			view.Notes = append(view.Notes, note.Value)
		}
	}
	for _, ref := range tlp.FilterVisible(m.References, ceiling) {
		if ref.Value != "" {
			view.References = append(view.References, ref.Value)
		}
	}
	if len(m.Tags) > 0 && tlp.Visible(m.TagsLevel, ceiling) {
		view.Tags = m.Tags
	}

	return view
}

// execute renders the page through the outer template chain: per-entry
// override, then the document-level default, then the embedded
// template. A failed override falls through with a warning rather than
// failing the render; only the embedded template failing is fatal.
func (r *Renderer) execute(overridePath string, p page) (string, error) {
	for _, path := range []string{overridePath, r.defaultTemplatePath} {
		if path == "" {
			continue
		}
		out, err := r.executeFile(path, p)
		if err != nil {
			r.logger.Warn("Template failed, falling back", "template", path, "error", err)
			continue
		}
		return out, nil
	}

	var buf bytes.Buffer
	if err := r.base.ExecuteTemplate(&buf, reportTemplate, p); err != nil {
		return "", fmt.Errorf("rendering report: %w", err)
	}
	return stripBlankLines(buf.String()), nil
}

func (r *Renderer) executeFile(path string, p page) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	tmpl, err := parseEmbedded()
	if err != nil {
		return "", err
	}
	// Parsing on the root redefines "report" with the override's body
	// while keeping the embedded partials available to it.
	if _, err := tmpl.Parse(string(content)); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, reportTemplate, p); err != nil {
		return "", err
	}
	return stripBlankLines(buf.String()), nil
}

// stripBlankLines drops the whitespace-only lines template actions
// leave behind, keeping reports diffable.
func stripBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n") + "\n"
}

func tlpClass(l tlp.Level) string {
	return "tlp-" + strings.ToLower(strings.TrimPrefix(l.Label(), "TLP-"))
}
