package rag

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mudler/xlog"

	"localanswer/rag/interfaces"
	"localanswer/rag/types"
)

// NoRelevantDocuments is the fixed answer returned when retrieval yields no
// passage above the score threshold. It is the single case where a query
// completes without touching the generation model.
const NoRelevantDocuments = "No relevant documents found to answer the query."

const answerPromptTemplate = `Use the following context to answer the question in a concise manner in paragraphs:

Context:
%s

Question: %s`

const summaryPromptTemplate = "Summarize the following answer in 2 or 3 sentences:\n\n%s"

const previewLength = 100

// QueryRequest carries the per-query knobs.
type QueryRequest struct {
	Question string
	// TopK is the maximum number of passages to retrieve.
	TopK int
	// MinScore filters out passages whose similarity falls below it.
	MinScore float64
	// Stream enables a simulated progress indicator while the answer call is
	// in flight. The generation call itself stays a single blocking request.
	Stream bool
	// Summarize requests a second generation call condensing the answer.
	Summarize bool
}

// Pipeline sequences retrieval, prompt assembly, generation, citation
// attachment and the optional summary call. It holds no per-session state;
// the caller owns the Session passed into Query.
type Pipeline struct {
	retriever *Retriever
	generator interfaces.Generator
	progress  io.Writer
}

// NewPipeline builds a pipeline around a retriever and a generator.
// Progress output for streamed queries goes to progress; pass nil to
// discard it.
func NewPipeline(retriever *Retriever, generator interfaces.Generator, progress io.Writer) (*Pipeline, error) {
	if retriever == nil {
		return nil, fmt.Errorf("retriever is required")
	}
	if generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if progress == nil {
		progress = io.Discard
	}
	return &Pipeline{retriever: retriever, generator: generator, progress: progress}, nil
}

// Query answers a single question against the document collection and
// appends the exchange to sess. When retrieval comes back empty the fixed
// NoRelevantDocuments answer is returned and the session is left untouched.
//
// A summary-call failure does not discard the answer: the result is
// returned alongside an error wrapping ErrSummarize.
func (p *Pipeline) Query(ctx context.Context, sess *Session, req QueryRequest) (*types.QueryResult, error) {
	passages, err := p.retriever.Retrieve(ctx, req.Question, req.TopK, req.MinScore)
	if err != nil {
		return nil, err
	}

	if len(passages) == 0 {
		// Deliberately not recorded in the session so failed lookups don't
		// pollute the conversational record.
		xlog.Debug("no passages above threshold", "question", req.Question, "min_score", req.MinScore)
		return &types.QueryResult{
			Question: req.Question,
			Answer:   NoRelevantDocuments,
			Sources:  []types.Source{},
			History:  sess.History(),
		}, nil
	}

	contents := make([]string, len(passages))
	sources := make([]types.Source, len(passages))
	for i, passage := range passages {
		contents[i] = passage.Content
		sources[i] = projectSource(passage)
	}
	contextBlock := strings.Join(contents, "\n\n")

	prompt := fmt.Sprintf(answerPromptTemplate, contextBlock, req.Question)

	var stopProgress func()
	if req.Stream {
		stopProgress = p.startProgress(ctx)
	}
	answer, err := p.generator.Generate(ctx, prompt)
	if stopProgress != nil {
		stopProgress()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	answerWithCitations := answer
	if len(sources) > 0 {
		citations := make([]string, len(sources))
		for i, src := range sources {
			citations[i] = fmt.Sprintf("[%d] %s (Score: %.2f)", i+1, src.Source, src.Score)
		}
		answerWithCitations = answer + "\n\nCitations:\n" + strings.Join(citations, "\n")
	}

	var summary string
	var summaryErr error
	if req.Summarize && answer != "" {
		summary, err = p.generator.Generate(ctx, fmt.Sprintf(summaryPromptTemplate, answer))
		if err != nil {
			// The answer survives; only the condensation is lost.
			xlog.Warn("summary generation failed", "error", err)
			summary = ""
			summaryErr = fmt.Errorf("%w: %w", ErrSummarize, err)
		}
	}

	sess.Append(types.HistoryEntry{
		Question: req.Question,
		Answer:   answer,
		Sources:  sources,
		Summary:  summary,
	})

	return &types.QueryResult{
		Question: req.Question,
		Answer:   answerWithCitations,
		Sources:  sources,
		Summary:  summary,
		History:  sess.History(),
	}, summaryErr
}

// startProgress emits a dot roughly every 50ms until stopped or the context
// is cancelled. This is a simulated activity indicator, not token delivery.
func (p *Pipeline) startProgress(ctx context.Context) func() {
	fmt.Fprint(p.progress, "Generating answer")
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				fmt.Fprint(p.progress, ".")
			case <-ctx.Done():
				return
			case <-done:
				return
			}
		}
	}()
	return func() {
		close(done)
		<-finished
		fmt.Fprintln(p.progress)
	}
}

func projectSource(passage types.Passage) types.Source {
	source := passage.Metadata["source_file"]
	if source == "" {
		source = "unknown"
	}
	page := passage.Metadata["page"]
	if page == "" {
		page = "unknown"
	}
	// Cut on characters, not bytes, so multibyte content stays valid UTF-8.
	preview := passage.Content
	if runes := []rune(preview); len(runes) > previewLength {
		preview = string(runes[:previewLength])
	}
	return types.Source{
		Source:  source,
		Page:    page,
		Score:   passage.Similarity,
		Preview: preview + "....",
	}
}
