package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kamilpajak/commentguard/internal/api"
	"github.com/kamilpajak/commentguard/internal/pipeline"
	"github.com/kamilpajak/commentguard/pkg/models"
)

// loadComments reads comments from a JSON file (an array of comments or an
// object with a "comments" array) or a text file with one comment per line.
func loadComments(path string) ([]models.Comment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read comments: %w", err)
	}

	var comments []models.Comment
	if strings.EqualFold(filepath.Ext(path), ".json") {
		comments, err = parseJSONComments(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else {
		comments = parseLines(data)
	}

	for i := range comments {
		c := &comments[i]
		if c.ID == "" {
			c.ID = strconv.Itoa(i + 1)
		}
		if c.OriginalText == "" {
			c.OriginalText = c.Text
		}
	}
	if len(comments) == 0 {
		return nil, fmt.Errorf("no comments found in %s", path)
	}
	return comments, nil
}

func parseJSONComments(data []byte) ([]models.Comment, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var comments []models.Comment
		err := json.Unmarshal(data, &comments)
		return comments, err
	}
	var wrapped struct {
		Comments []models.Comment `json:"comments"`
	}
	err := json.Unmarshal(data, &wrapped)
	return wrapped.Comments, err
}

func parseLines(data []byte) []models.Comment {
	var comments []models.Comment
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		comments = append(comments, models.Comment{OriginalText: line, Text: line})
	}
	return comments
}

// loadSettings reads pipeline settings in the same JSON shape the server
// accepts on PUT /api/ai-configuration.
func loadSettings(path string) (*api.AIConfiguration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	var s api.AIConfiguration
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse settings %s: %w", path, err)
	}
	return &s, nil
}

func pipelineConfig(s *api.AIConfiguration, fallbackMode models.Mode) pipeline.Config {
	mode := s.DefaultMode
	if mode == "" {
		mode = fallbackMode
	}
	return pipeline.Config{
		ScanA:       s.ScanA,
		ScanB:       s.ScanB,
		Adjudicator: s.Adjudicator,
		PostProcess: s.PostProcess,
		DefaultMode: mode,
	}
}

// writeOutput writes v as indented JSON to --output, or stdout.
func writeOutput(stdout io.Writer, v any) error {
	w := stdout
	if outputPath != "" {
		f, err := os.Create(outputPath)
		if err != nil {
			return fmt.Errorf("failed to create output: %w", err)
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
