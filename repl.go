package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"localanswer/pkg/config"
	"localanswer/rag"
)

const queryTimeout = 2 * time.Minute

const separator = "=================================================="

// runREPL drives the interactive question loop: free-text questions in,
// answers with citations out, until exit/quit or EOF.
func runREPL(cfg *config.AppConfig, pipeline *rag.Pipeline, library *rag.Library) error {
	sess := rag.NewSession()
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	fmt.Printf(">>> Ready to answer questions over %d indexed documents. (Type 'exit' to quit)\n", len(library.ListDocuments()))

	for {
		fmt.Print("\nUser Query: ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		switch strings.ToLower(question) {
		case "exit", "quit":
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
		result, err := pipeline.Query(ctx, sess, rag.QueryRequest{
			Question:  question,
			TopK:      cfg.Retrieval.TopK,
			MinScore:  *cfg.Retrieval.MinScore,
			Stream:    true,
			Summarize: true,
		})
		cancel()

		if err != nil && !errors.Is(err, rag.ErrSummarize) {
			fmt.Printf("Error: %v\n", err)
			continue
		}

		fmt.Println("\n" + separator)
		fmt.Printf("AI Response:\n%s\n", result.Answer)
		if errors.Is(err, rag.ErrSummarize) {
			fmt.Println("\n(summary unavailable)")
		} else if result.Summary != "" {
			fmt.Printf("\nSummary:\n%s\n", result.Summary)
		}
		fmt.Println(separator)
	}
}
