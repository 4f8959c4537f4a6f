package content

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"
	"gopkg.in/yaml.v3"

	"gitscribe/internal/config"
	"gitscribe/pkg/logging"
)

// FrontMatter is the YAML header of a post.
type FrontMatter struct {
	Title      string    `yaml:"title" json:"title"`
	Date       time.Time `yaml:"date" json:"date"`
	Draft      bool      `yaml:"draft" json:"draft"`
	Categories []string  `yaml:"categories" json:"categories"`
	Tags       []string  `yaml:"tags" json:"tags"`
}

// Post is one markdown post with its parsed header.
type Post struct {
	Path  string      `json:"path"`
	Meta  FrontMatter `json:"meta"`
	Size  int64       `json:"size"`
	MTime time.Time   `json:"mtime"`
}

// defaultArchetype is used when the workspace carries no template file.
const defaultArchetype = `---
title: "{{ .Title }}"
date: {{ .Date }}
draft: true
categories: []
tags: []
---
`

var (
	frontMatterDelim = []byte("---")
	markdownImageRe  = regexp.MustCompile(`!\[[^\]]*\]\(([^)\s]+)`)
	htmlImageRe      = regexp.MustCompile(`(?i)<img[^>]+src=["']([^"']+)["']`)
)

// imageExtensions are the file types the pruner is allowed to delete.
var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true,
	".gif": true, ".webp": true, ".svg": true,
}

// PostService manages the markdown posts inside a workspace: listing with
// parsed front matter, creation from the archetype template, and pruning of
// images no post references anymore.
type PostService struct {
	cfg config.ContentConfig
}

func NewPostService(cfg config.ContentConfig) *PostService {
	return &PostService{cfg: cfg}
}

func (s *PostService) postsDir(workspacePath string) string {
	dir := s.cfg.PostsDir
	if dir == "" {
		dir = config.DefaultPostsDir
	}
	return filepath.Join(workspacePath, filepath.FromSlash(dir))
}

// ParseFrontMatter splits a markdown document into its YAML header and
// body. Documents without a header yield a zero FrontMatter and the whole
// input as body.
func ParseFrontMatter(data []byte) (FrontMatter, []byte, error) {
	var meta FrontMatter
	trimmed := bytes.TrimLeft(data, "\xef\xbb\xbf")
	if !bytes.HasPrefix(trimmed, frontMatterDelim) {
		return meta, data, nil
	}
	rest := trimmed[len(frontMatterDelim):]
	rest = bytes.TrimPrefix(rest, []byte("\r"))
	if len(rest) == 0 || rest[0] != '\n' {
		return meta, data, nil
	}
	rest = rest[1:]

	end := bytes.Index(rest, []byte("\n---"))
	if end < 0 {
		return meta, data, nil
	}
	header := rest[:end]
	body := rest[end+len("\n---"):]
	if i := bytes.IndexByte(body, '\n'); i >= 0 {
		body = body[i+1:]
	} else {
		body = nil
	}
	if err := yaml.Unmarshal(header, &meta); err != nil {
		return FrontMatter{}, data, fmt.Errorf("parsing front matter: %w", err)
	}
	return meta, body, nil
}

// PostTitle returns the front matter title of the markdown file at abs,
// empty when the file has none or cannot be read. Satisfies the commit
// message title lookup.
func (s *PostService) PostTitle(abs string) string {
	data, err := os.ReadFile(abs)
	if err != nil {
		return ""
	}
	meta, _, err := ParseFrontMatter(data)
	if err != nil {
		return ""
	}
	return meta.Title
}

// List returns all posts sorted by date, newest first.
func (s *PostService) List(workspacePath string) ([]Post, error) {
	dir := s.postsDir(workspacePath)
	var posts []Post

	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && p == dir {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		meta, _, err := ParseFrontMatter(data)
		if err != nil {
			logging.Warn("Content", "Skipping post with bad front matter: %s", p)
			return nil
		}
		rel, err := filepath.Rel(workspacePath, p)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		posts = append(posts, Post{
			Path:  filepath.ToSlash(rel),
			Meta:  meta,
			Size:  info.Size(),
			MTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing posts: %w", err)
	}

	sort.Slice(posts, func(i, j int) bool {
		return posts[i].Meta.Date.After(posts[j].Meta.Date)
	})
	return posts, nil
}

// Categories returns every category used across posts, sorted and unique.
func (s *PostService) Categories(workspacePath string) ([]string, error) {
	posts, err := s.List(workspacePath)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var out []string
	for _, p := range posts {
		for _, c := range p.Meta.Categories {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// slugify turns a title into a file name stem.
func slugify(title string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

// Create renders the archetype template into a new post file and returns
// its workspace-relative path. A post with the same slug must not exist.
func (s *PostService) Create(workspacePath, title string) (string, error) {
	slug := slugify(title)
	if slug == "" {
		return "", fmt.Errorf("title produces an empty file name")
	}

	tmplText := defaultArchetype
	tmplPath := s.cfg.TemplatePath
	if tmplPath == "" {
		tmplPath = config.DefaultTemplatePath
	}
	if data, err := os.ReadFile(filepath.Join(workspacePath, filepath.FromSlash(tmplPath))); err == nil {
		tmplText = string(data)
	}

	tmpl, err := template.New("archetype").Funcs(sprig.FuncMap()).Parse(tmplText)
	if err != nil {
		return "", fmt.Errorf("parsing archetype template: %w", err)
	}

	var buf bytes.Buffer
	err = tmpl.Execute(&buf, map[string]any{
		"Title": title,
		"Slug":  slug,
		"Date":  time.Now().Format(time.RFC3339),
	})
	if err != nil {
		return "", fmt.Errorf("rendering archetype template: %w", err)
	}

	dir := s.postsDir(workspacePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating posts directory: %w", err)
	}
	abs := filepath.Join(dir, slug+".md")
	if _, err := os.Stat(abs); err == nil {
		return "", fmt.Errorf("post %q already exists", slug)
	}
	if err := os.WriteFile(abs, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("writing post: %w", err)
	}

	rel, err := filepath.Rel(workspacePath, abs)
	if err != nil {
		return "", err
	}
	logging.Info("Content", "Created post %s", rel)
	return filepath.ToSlash(rel), nil
}

// PruneUnusedImages deletes image files under the posts directory that no
// markdown file in the workspace references. Returns the pruned paths.
func (s *PostService) PruneUnusedImages(workspacePath string) ([]string, error) {
	referenced := map[string]bool{}
	err := filepath.WalkDir(workspacePath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" || d.Name() == ".sessions" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		for _, re := range []*regexp.Regexp{markdownImageRe, htmlImageRe} {
			for _, m := range re.FindAllSubmatch(data, -1) {
				ref := strings.TrimPrefix(string(m[1]), "/")
				referenced[filepath.Base(ref)] = true
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning for image references: %w", err)
	}

	var pruned []string
	dir := s.postsDir(workspacePath)
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && p == dir {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(d.Name()))] {
			return nil
		}
		if referenced[d.Name()] {
			return nil
		}
		if err := os.Remove(p); err != nil {
			return err
		}
		rel, _ := filepath.Rel(workspacePath, p)
		pruned = append(pruned, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("pruning images: %w", err)
	}
	if len(pruned) > 0 {
		logging.Info("Content", "Pruned %d unreferenced images", len(pruned))
	}
	return pruned, nil
}
