package slides

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/ternarybob/arbor"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"

	"github.com/ternarybob/slidegen/internal/interfaces"
	"github.com/ternarybob/slidegen/internal/models"
)

// slotScheme prefixes image destinations that name a replaceable slot
const slotScheme = "slot:"

// Service implements interfaces.SlideService over Markdown templates.
// Each row renders to one PDF page under <output>.parts and Finalize merges
// the pages into the output document.
type Service struct {
	logger    arbor.ILogger
	markdown  goldmark.Markdown
	mu        sync.Mutex
	templates map[string]*template
}

type template struct {
	path    string
	title   string
	body    string
	slots   []string
	modTime time.Time
}

type frontmatter struct {
	Title string `yaml:"title"`
}

// Compile-time assertion
var _ interfaces.SlideService = (*Service)(nil)

// NewService creates a new slide service
func NewService(logger arbor.ILogger) *Service {
	return &Service{
		logger: logger,
		markdown: goldmark.New(
			goldmark.WithExtensions(extension.Table, extension.Strikethrough),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		),
		templates: make(map[string]*template),
	}
}

// OpenTemplate parses the template and reports its image slots
func (s *Service) OpenTemplate(ctx context.Context, path string) (*interfaces.TemplateInfo, error) {
	tmpl, err := s.load(path)
	if err != nil {
		return nil, err
	}
	return &interfaces.TemplateInfo{
		Path:       tmpl.path,
		ImageSlots: append([]string(nil), tmpl.slots...),
	}, nil
}

// ProcessRow substitutes the row into the template and renders its page.
// A retried row overwrites the page written by the previous attempt.
func (s *Service) ProcessRow(ctx context.Context, req interfaces.RowRequest) (interfaces.RowResult, error) {
	var result interfaces.RowResult

	tmpl, err := s.load(req.TemplatePath)
	if err != nil {
		return result, err
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	body, replacements := substitute(tmpl.body, req)
	result.TextReplacements = replacements

	source := []byte(body)
	doc := s.markdown.Parser().Parse(text.NewReader(source))

	renderer := newRenderer(source, req.Images, s.logger)
	if tmpl.title != "" {
		renderer.pdf.SetTitle(tmpl.title, true)
	}
	if err := renderer.render(doc); err != nil {
		return result, fmt.Errorf("render row %d: %w", req.RowIndex+1, err)
	}
	result.ImageReplacements = renderer.placed
	result.ImageErrors = len(renderer.imageErrors)
	result.Errors = renderer.imageErrors

	path := partPath(req.OutputPath, req.RowIndex)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return result, fmt.Errorf("failed to create parts directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := renderer.pdf.OutputFileAndClose(tmp); err != nil {
		os.Remove(tmp)
		return result, fmt.Errorf("failed to write row %d: %w", req.RowIndex+1, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return result, fmt.Errorf("failed to commit row %d: %w", req.RowIndex+1, err)
	}

	s.logger.Debug().
		Str("output", req.OutputPath).
		Int("row", req.RowIndex+1).
		Int("text_replacements", len(result.TextReplacements)).
		Int("image_replacements", len(result.ImageReplacements)).
		Msg("Row rendered")
	return result, nil
}

// Finalize merges the row pages in order into outputPath and removes them
func (s *Service) Finalize(ctx context.Context, outputPath string, rows int) error {
	if rows <= 0 {
		return nil
	}

	files := make([]string, 0, rows)
	for i := 0; i < rows; i++ {
		path := partPath(outputPath, i)
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("row %d has no rendered page: %w", i+1, err)
		}
		files = append(files, path)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp := outputPath + ".tmp"
	if len(files) == 1 {
		data, err := os.ReadFile(files[0])
		if err != nil {
			return fmt.Errorf("failed to read row page: %w", err)
		}
		if err := os.WriteFile(tmp, data, 0644); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	} else if err := api.MergeCreateFile(files, tmp, false, model.NewDefaultConfiguration()); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to merge %d pages: %w", len(files), err)
	}
	if err := os.Rename(tmp, outputPath); err != nil {
		return fmt.Errorf("failed to commit output: %w", err)
	}

	if err := os.RemoveAll(partsDir(outputPath)); err != nil {
		s.logger.Warn().Err(err).Str("output", outputPath).Msg("Failed to remove row pages")
	}

	s.logger.Info().Str("output", outputPath).Int("pages", rows).Msg("Document assembled")
	return nil
}

// load returns the parsed template, re-reading it when the file changed
func (s *Service) load(path string) (*template, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: template %s: %v", interfaces.ErrSourceUnreadable, path, err)
	}

	s.mu.Lock()
	cached, ok := s.templates[path]
	s.mu.Unlock()
	if ok && cached.modTime.Equal(info.ModTime()) {
		return cached, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: template %s: %v", interfaces.ErrSourceUnreadable, path, err)
	}

	body, meta, err := splitFrontmatter(string(data))
	if err != nil {
		return nil, fmt.Errorf("%w: template %s: %v", interfaces.ErrSourceUnreadable, path, err)
	}

	tmpl := &template{
		path:    path,
		title:   meta.Title,
		body:    body,
		slots:   s.findSlots([]byte(body)),
		modTime: info.ModTime(),
	}

	s.mu.Lock()
	s.templates[path] = tmpl
	s.mu.Unlock()

	s.logger.Debug().Str("path", path).Int("slots", len(tmpl.slots)).Msg("Template loaded")
	return tmpl, nil
}

func (s *Service) findSlots(source []byte) []string {
	doc := s.markdown.Parser().Parse(text.NewReader(source))
	var slots []string
	seen := make(map[string]bool)
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if img, ok := n.(*ast.Image); ok && entering {
			if slot, ok := slotName(string(img.Destination)); ok && !seen[slot] {
				seen[slot] = true
				slots = append(slots, slot)
			}
		}
		return ast.WalkContinue, nil
	})
	return slots
}

// substitute replaces every text pattern in one pass so values containing
// other patterns are left alone
func substitute(body string, req interfaces.RowRequest) (string, []interfaces.Replacement) {
	var pairs []string
	var replacements []interfaces.Replacement
	for _, cfg := range req.TextConfigs {
		if cfg.Pattern == "" || !strings.Contains(body, cfg.Pattern) {
			continue
		}
		value, _ := models.FirstValue(req.Row, cfg.Columns)
		pairs = append(pairs, cfg.Pattern, value)
		replacements = append(replacements, interfaces.Replacement{Target: cfg.Pattern, Value: value})
	}
	if len(pairs) == 0 {
		return body, nil
	}
	return strings.NewReplacer(pairs...).Replace(body), replacements
}

func slotName(destination string) (string, bool) {
	if !strings.HasPrefix(destination, slotScheme) {
		return "", false
	}
	name := strings.TrimSpace(strings.TrimPrefix(destination, slotScheme))
	return name, name != ""
}

// splitFrontmatter separates an optional YAML frontmatter block from the body
func splitFrontmatter(markdown string) (string, frontmatter, error) {
	var meta frontmatter
	if !strings.HasPrefix(markdown, "---\n") {
		return markdown, meta, nil
	}
	end := strings.Index(markdown[4:], "\n---\n")
	if end == -1 {
		return markdown, meta, nil
	}
	if err := yaml.Unmarshal([]byte(markdown[4:4+end]), &meta); err != nil {
		return "", meta, fmt.Errorf("invalid frontmatter: %w", err)
	}
	return strings.TrimSpace(markdown[4+end+5:]), meta, nil
}

func partsDir(outputPath string) string {
	return outputPath + ".parts"
}

func partPath(outputPath string, row int) string {
	return filepath.Join(partsDir(outputPath), fmt.Sprintf("row-%06d.pdf", row+1))
}
