package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/mudler/xlog"

	"localanswer/pkg/chunk"
	"localanswer/pkg/loader"
	"localanswer/rag/interfaces"
	"localanswer/rag/sources"
	"localanswer/rag/types"
)

// Library is the ingestion side of the system: it tracks which files have
// been indexed, keeps a copy of each under an asset directory, and pushes
// loaded, chunked, embedded content into the vector index. The tracked file
// list is persisted as JSON so the library survives restarts.
type Library struct {
	sync.Mutex
	index        interfaces.Index
	embedder     interfaces.Embedder
	files        []string
	statePath    string
	assetDir     string
	maxChunkSize int
}

func loadState(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	files := []string{}
	err = json.Unmarshal(data, &files)
	return files, err
}

// NewLibrary opens a library rooted at assetDir with its tracked-file state
// at statePath, creating both when absent.
func NewLibrary(statePath, assetDir string, index interfaces.Index, embedder interfaces.Embedder, maxChunkSize int) (*Library, error) {
	if err := os.MkdirAll(assetDir, 0755); err != nil {
		return nil, err
	}

	lib := &Library{
		index:        index,
		embedder:     embedder,
		statePath:    statePath,
		assetDir:     assetDir,
		maxChunkSize: maxChunkSize,
	}

	if _, err := os.Stat(statePath); err != nil {
		lib.files = []string{}
		return lib, lib.save()
	}

	files, err := loadState(statePath)
	if err != nil {
		return nil, err
	}
	lib.files = files
	return lib, nil
}

func (l *Library) save() error {
	data, err := json.Marshal(l.files)
	if err != nil {
		return err
	}
	return os.WriteFile(l.statePath, data, 0644)
}

// AddFile copies a document into the asset directory and indexes it.
func (l *Library) AddFile(ctx context.Context, path string) error {
	l.Lock()
	defer l.Unlock()

	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("file does not exist: %s", path)
	}

	name := filepath.Base(path)
	if l.exists(name) {
		return fmt.Errorf("entry already exists: %s", name)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	dest := filepath.Join(l.assetDir, name)
	if err := os.WriteFile(dest, data, 0644); err != nil {
		return fmt.Errorf("failed to copy file: %w", err)
	}

	if err := l.ingest(ctx, dest); err != nil {
		os.Remove(dest)
		return err
	}

	l.files = append(l.files, name)
	return l.save()
}

// AddWebPage fetches a URL, stores its plain-text rendering as an asset and
// indexes it like any other file.
func (l *Library) AddWebPage(ctx context.Context, url string) error {
	content, err := sources.GetWebPage(url)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	return l.addFetched(ctx, url, content)
}

// AddSitemap fetches every page listed in a sitemap and indexes the lot as
// a single entry.
func (l *Library) AddSitemap(ctx context.Context, url string) error {
	pages, err := sources.GetWebSitemapContent(url)
	if err != nil {
		return fmt.Errorf("failed to walk sitemap %s: %w", url, err)
	}
	return l.addFetched(ctx, url, strings.Join(pages, "\n\n"))
}

// AddGitRepository shallow-clones a repository and indexes its text files.
func (l *Library) AddGitRepository(ctx context.Context, url string) error {
	content, err := sources.GetGitRepositoryContent(url)
	if err != nil {
		return fmt.Errorf("failed to clone %s: %w", url, err)
	}
	return l.addFetched(ctx, url, content)
}

func (l *Library) addFetched(ctx context.Context, url, content string) error {
	l.Lock()
	defer l.Unlock()

	name := sanitizeEntryName(url) + ".txt"
	if l.exists(name) {
		return fmt.Errorf("entry already exists: %s", name)
	}

	dest := filepath.Join(l.assetDir, name)
	if err := os.WriteFile(dest, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to store fetched content: %w", err)
	}

	if err := l.ingest(ctx, dest); err != nil {
		os.Remove(dest)
		return err
	}

	l.files = append(l.files, name)
	return l.save()
}

// ingest loads a file, chunks each page and upserts the embedded chunks.
func (l *Library) ingest(ctx context.Context, path string) error {
	pages, err := loader.LoadFile(path)
	if err != nil {
		return err
	}

	var texts []string
	var metadatas []map[string]string
	for _, page := range pages {
		for i, piece := range chunk.Split(page.Content, l.maxChunkSize) {
			meta := make(map[string]string, len(page.Metadata)+2)
			for k, v := range page.Metadata {
				meta[k] = v
			}
			meta["chunk"] = strconv.Itoa(i)
			meta["content_length"] = strconv.Itoa(len(piece))
			texts = append(texts, piece)
			metadatas = append(metadatas, meta)
		}
	}
	if len(texts) == 0 {
		return fmt.Errorf("no indexable content in %s", filepath.Base(path))
	}

	vectors, err := l.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed chunks: %w", err)
	}
	if len(vectors) != len(texts) {
		return fmt.Errorf("expected %d embeddings, got %d", len(texts), len(vectors))
	}

	docs := make([]types.Document, len(texts))
	for i := range texts {
		docs[i] = types.Document{
			ID:        fmt.Sprintf("doc_%s_%d", strings.ReplaceAll(uuid.NewString(), "-", "")[:8], i),
			Content:   texts[i],
			Metadata:  metadatas[i],
			Embedding: vectors[i],
		}
	}

	if err := l.index.Upsert(ctx, docs); err != nil {
		return fmt.Errorf("failed to upsert chunks: %w", err)
	}

	xlog.Info("Indexed document", "source", filepath.Base(path), "chunks", len(docs))
	return nil
}

func (l *Library) exists(name string) bool {
	for _, f := range l.files {
		if f == name {
			return true
		}
	}
	return false
}

// EntryExists reports whether a file name is already tracked.
func (l *Library) EntryExists(name string) bool {
	l.Lock()
	defer l.Unlock()
	return l.exists(filepath.Base(name))
}

// ListDocuments returns the tracked entry names.
func (l *Library) ListDocuments() []string {
	l.Lock()
	defer l.Unlock()
	out := make([]string, len(l.files))
	copy(out, l.files)
	return out
}

// RemoveEntry drops a tracked file and rebuilds the index from the
// remaining assets, since not every backend supports selective deletes.
func (l *Library) RemoveEntry(ctx context.Context, name string) error {
	l.Lock()
	found := false
	for i, f := range l.files {
		if f == name {
			l.files = append(l.files[:i], l.files[i+1:]...)
			os.Remove(filepath.Join(l.assetDir, f))
			found = true
			break
		}
	}
	l.save()
	l.Unlock()

	if !found {
		return fmt.Errorf("entry not found: %s", name)
	}
	return l.repopulate(ctx)
}

// Reset clears the index, the asset copies and the tracked state.
func (l *Library) Reset() error {
	l.Lock()
	for _, f := range l.files {
		os.Remove(filepath.Join(l.assetDir, f))
	}
	l.files = []string{}
	l.save()
	l.Unlock()

	return l.index.Reset()
}

func (l *Library) repopulate(ctx context.Context) error {
	l.Lock()
	defer l.Unlock()

	if err := l.index.Reset(); err != nil {
		return fmt.Errorf("failed to reset index: %w", err)
	}

	for _, f := range l.files {
		if err := l.ingest(ctx, filepath.Join(l.assetDir, f)); err != nil {
			return fmt.Errorf("failed to re-ingest %s: %w", f, err)
		}
	}
	return nil
}

func sanitizeEntryName(url string) string {
	name := strings.TrimPrefix(strings.TrimPrefix(url, "https://"), "http://")
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			return r
		default:
			return '_'
		}
	}, name)
	return strings.Trim(name, "_")
}
