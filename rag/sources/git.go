package sources

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
)

// GetGitRepositoryContent shallow-clones a repository and returns the
// concatenated content of its documentation and text files, each prefixed
// with a file marker so chunk metadata stays traceable.
func GetGitRepositoryContent(url string) (string, error) {
	tempDir, err := os.MkdirTemp("", "git-source-*")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(tempDir)

	_, err = git.PlainClone(tempDir, false, &git.CloneOptions{
		URL:          url,
		Depth:        1,
		SingleBranch: true,
	})
	if err != nil {
		return "", err
	}

	var content strings.Builder
	err = filepath.Walk(tempDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() && info.Name() == ".git" {
			return filepath.SkipDir
		}
		if info.IsDir() || !isTextFile(path) {
			return nil
		}

		fileContent, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		content.WriteString("\n--- File: " + strings.TrimPrefix(path, tempDir+"/") + " ---\n")
		content.Write(fileContent)
		content.WriteString("\n")
		return nil
	})
	if err != nil {
		return "", err
	}

	return content.String(), nil
}

func isTextFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".rst", ".adoc", ".wiki", ".csv", ".json", ".yaml", ".yml", ".toml", ".ini", ".conf":
		return true
	}
	return false
}
