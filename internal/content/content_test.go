package content

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitscribe/internal/config"
)

func testContentConfig() config.ContentConfig {
	return config.ContentConfig{
		PostsDir:          "content/posts",
		TemplatePath:      "archetypes/posts.md",
		HiddenFolders:     []string{".git", ".sessions", "node_modules"},
		AllowedExtensions: []string{".md", ".png", ".jpg"},
	}
}

func TestValidatePath(t *testing.T) {
	base := t.TempDir()

	cases := []struct {
		name string
		raw  string
		ok   bool
	}{
		{"plain file", "content/posts/hello.md", true},
		{"nested", "a/b/c.md", true},
		{"empty", "", false},
		{"whitespace", "   ", false},
		{"traversal", "../secrets.txt", false},
		{"embedded traversal", "posts/../../etc/passwd", false},
		{"absolute", "/etc/passwd", false},
		{"backslash", `posts\evil.md`, false},
		{"encoded traversal", "%2e%2e/secrets", false},
		{"double encoded traversal", "%252e%252e/secrets", false},
		{"null byte", "a%00.md", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			abs, err := ValidatePath(tc.raw, base)
			if tc.ok {
				require.NoError(t, err)
				assert.True(t, strings.HasPrefix(abs, base))
			} else {
				assert.ErrorIs(t, err, ErrInvalidPath)
			}
		})
	}
}

func TestFileServiceRoundTrip(t *testing.T) {
	ws := t.TempDir()
	svc := NewFileService(testContentConfig())

	require.NoError(t, svc.Write(ws, "content/posts/hello.md", []byte("# Hello")))
	data, err := svc.Read(ws, "content/posts/hello.md")
	require.NoError(t, err)
	assert.Equal(t, "# Hello", string(data))

	require.NoError(t, svc.Rename(ws, "content/posts/hello.md", "content/posts/renamed.md"))
	_, err = svc.Read(ws, "content/posts/hello.md")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, svc.Delete(ws, "content/posts/renamed.md"))
	assert.ErrorIs(t, svc.Delete(ws, "content/posts/renamed.md"), ErrNotFound)
}

func TestFileServiceListFilters(t *testing.T) {
	ws := t.TempDir()
	svc := NewFileService(testContentConfig())

	require.NoError(t, svc.Write(ws, "content/posts/a.md", []byte("a")))
	require.NoError(t, svc.Write(ws, "content/posts/skip.exe", []byte("x")))
	require.NoError(t, os.MkdirAll(filepath.Join(ws, ".sessions"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(ws, "node_modules", "dep"), 0o755))

	entries, err := svc.List(ws)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "content", entries[0].Name)

	posts := entries[0].Children[0]
	require.Equal(t, "posts", posts.Name)
	require.Len(t, posts.Children, 1)
	assert.Equal(t, "content/posts/a.md", posts.Children[0].Path)
}

func TestParseFrontMatter(t *testing.T) {
	doc := []byte(`---
title: "My Post"
date: 2026-08-01T10:00:00Z
categories: [tech, golang]
---

Body text here.
`)
	meta, body, err := ParseFrontMatter(doc)
	require.NoError(t, err)
	assert.Equal(t, "My Post", meta.Title)
	assert.Equal(t, []string{"tech", "golang"}, meta.Categories)
	assert.Equal(t, 2026, meta.Date.Year())
	assert.Equal(t, "\nBody text here.\n", string(body))
}

func TestParseFrontMatterMissingHeader(t *testing.T) {
	meta, body, err := ParseFrontMatter([]byte("just text"))
	require.NoError(t, err)
	assert.Empty(t, meta.Title)
	assert.Equal(t, "just text", string(body))
}

func TestPostCreateUsesArchetype(t *testing.T) {
	ws := t.TempDir()
	svc := NewPostService(testContentConfig())

	archetype := `---
title: "{{ .Title | upper }}"
date: {{ .Date }}
draft: true
---
`
	require.NoError(t, os.MkdirAll(filepath.Join(ws, "archetypes"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(ws, "archetypes", "posts.md"), []byte(archetype), 0o644))

	rel, err := svc.Create(ws, "Hello World")
	require.NoError(t, err)
	assert.Equal(t, "content/posts/hello-world.md", rel)

	data, err := os.ReadFile(filepath.Join(ws, "content", "posts", "hello-world.md"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `title: "HELLO WORLD"`)

	_, err = svc.Create(ws, "Hello  World!")
	assert.Error(t, err, "same slug must not be overwritten")
}

func TestPostCreateDefaultArchetype(t *testing.T) {
	ws := t.TempDir()
	svc := NewPostService(testContentConfig())

	rel, err := svc.Create(ws, "No Template")
	require.NoError(t, err)

	title := svc.PostTitle(filepath.Join(ws, filepath.FromSlash(rel)))
	assert.Equal(t, "No Template", title)
}

func TestPostListSortedByDate(t *testing.T) {
	ws := t.TempDir()
	svc := NewPostService(testContentConfig())
	dir := filepath.Join(ws, "content", "posts")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	write := func(name, title string, date time.Time) {
		doc := "---\ntitle: \"" + title + "\"\ndate: " + date.Format(time.RFC3339) + "\ncategories: [blog]\n---\nbody"
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(doc), 0o644))
	}
	write("old.md", "Old", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	write("new.md", "New", time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))

	posts, err := svc.List(ws)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "New", posts[0].Meta.Title)
	assert.Equal(t, "Old", posts[1].Meta.Title)

	cats, err := svc.Categories(ws)
	require.NoError(t, err)
	assert.Equal(t, []string{"blog"}, cats)
}

func TestPruneUnusedImages(t *testing.T) {
	ws := t.TempDir()
	svc := NewPostService(testContentConfig())
	dir := filepath.Join(ws, "content", "posts")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	post := "---\ntitle: \"P\"\n---\n![shot](/content/posts/used.png)\n<img src=\"also-used.jpg\">"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "p.md"), []byte(post), 0o644))
	for _, name := range []string{"used.png", "also-used.jpg", "orphan.png"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte{1}, 0o644))
	}

	pruned, err := svc.PruneUnusedImages(ws)
	require.NoError(t, err)
	assert.Equal(t, []string{"content/posts/orphan.png"}, pruned)
	assert.FileExists(t, filepath.Join(dir, "used.png"))
	assert.FileExists(t, filepath.Join(dir, "also-used.jpg"))
}
