package rag_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	. "localanswer/rag"
	"localanswer/rag/types"
)

var _ = Describe("Pipeline", func() {
	var (
		embedder  *fakeEmbedder
		index     *fakeIndex
		generator *fakeGenerator
		sess      *Session
		ctx       context.Context
	)

	BeforeEach(func() {
		embedder = &fakeEmbedder{}
		index = &fakeIndex{}
		generator = newFakeGenerator("the answer", "the summary")
		sess = NewSession()
		ctx = context.Background()
	})

	newPipeline := func(progress *bytes.Buffer) *Pipeline {
		retriever, err := NewRetriever(embedder, index, MetricCosine)
		Expect(err).ToNot(HaveOccurred())
		var p *Pipeline
		if progress != nil {
			p, err = NewPipeline(retriever, generator, progress)
		} else {
			p, err = NewPipeline(retriever, generator, nil)
		}
		Expect(err).ToNot(HaveOccurred())
		return p
	}

	request := func() QueryRequest {
		return QueryRequest{Question: "what is it?", TopK: 5, MinScore: 0.2}
	}

	seedIndex := func() {
		index.matches = []types.Match{
			match("1", "alpha passage content", 0.1, map[string]string{"source_file": "a.pdf", "page": "3"}),
			match("2", "beta passage content", 0.4, map[string]string{"source_file": "b.txt"}),
		}
	}

	Describe("empty retrieval", func() {
		It("short-circuits with the fixed answer and leaves history untouched", func() {
			result, err := newPipeline(nil).Query(ctx, sess, request())
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Answer).To(Equal("No relevant documents found to answer the query."))
			Expect(result.Sources).To(BeEmpty())
			Expect(result.Summary).To(BeEmpty())
			Expect(sess.Len()).To(BeZero())
			Expect(generator.prompts).To(BeEmpty())
		})
	})

	Describe("prompt assembly", func() {
		It("joins passage contents with blank lines and embeds the question", func() {
			seedIndex()

			_, err := newPipeline(nil).Query(ctx, sess, request())
			Expect(err).ToNot(HaveOccurred())
			Expect(generator.prompts).To(HaveLen(1))
			prompt := generator.prompts[0]
			Expect(prompt).To(ContainSubstring("Use the following context"))
			Expect(prompt).To(ContainSubstring("alpha passage content\n\nbeta passage content"))
			Expect(prompt).To(ContainSubstring("Question: what is it?"))
		})
	})

	Describe("sources projection", func() {
		It("falls back to unknown for missing metadata and previews 100 characters", func() {
			long := strings.Repeat("x", 150)
			index.matches = []types.Match{
				match("1", long, 0.1, map[string]string{"source_file": "a.pdf", "page": "3"}),
				match("2", "short", 0.4, nil),
			}

			result, err := newPipeline(nil).Query(ctx, sess, request())
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Sources).To(HaveLen(2))

			Expect(result.Sources[0].Source).To(Equal("a.pdf"))
			Expect(result.Sources[0].Page).To(Equal("3"))
			Expect(result.Sources[0].Preview).To(Equal(strings.Repeat("x", 100) + "...."))

			Expect(result.Sources[1].Source).To(Equal("unknown"))
			Expect(result.Sources[1].Page).To(Equal("unknown"))
			Expect(result.Sources[1].Preview).To(Equal("short...."))
		})

		It("cuts previews on character boundaries for multibyte content", func() {
			index.matches = []types.Match{
				match("1", strings.Repeat("€", 150), 0.1, nil),
			}

			result, err := newPipeline(nil).Query(ctx, sess, request())
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Sources[0].Preview).To(Equal(strings.Repeat("€", 100) + "...."))
			Expect(utf8.ValidString(result.Sources[0].Preview)).To(BeTrue())
		})

		It("preserves rank order and scores", func() {
			seedIndex()

			result, err := newPipeline(nil).Query(ctx, sess, request())
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Sources[0].Score).To(BeNumerically("~", 0.9, 1e-9))
			Expect(result.Sources[1].Score).To(BeNumerically("~", 0.6, 1e-9))
		})
	})

	Describe("citations", func() {
		It("appends one line per source with the score to two decimals", func() {
			seedIndex()

			result, err := newPipeline(nil).Query(ctx, sess, request())
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Answer).To(HavePrefix("the answer\n\nCitations:\n"))

			block := strings.TrimPrefix(result.Answer, "the answer\n\nCitations:\n")
			lines := strings.Split(block, "\n")
			Expect(lines).To(HaveLen(len(result.Sources)))
			Expect(lines[0]).To(Equal("[1] a.pdf (Score: 0.90)"))
			Expect(lines[1]).To(Equal("[2] unknown (Score: 0.60)"))
		})

		It("stores history without the citation block", func() {
			seedIndex()

			result, err := newPipeline(nil).Query(ctx, sess, request())
			Expect(err).ToNot(HaveOccurred())
			Expect(result.History).To(HaveLen(1))
			Expect(result.History[0].Answer).To(Equal("the answer"))
			Expect(result.History[0].Answer).ToNot(ContainSubstring("Citations:"))
		})
	})

	Describe("summarization", func() {
		It("is skipped when not requested, with exactly one generation call", func() {
			seedIndex()

			result, err := newPipeline(nil).Query(ctx, sess, request())
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Summary).To(BeEmpty())
			Expect(generator.prompts).To(HaveLen(1))
		})

		It("runs a second sequential generation call over the answer", func() {
			seedIndex()
			req := request()
			req.Summarize = true

			result, err := newPipeline(nil).Query(ctx, sess, req)
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Summary).To(Equal("the summary"))
			Expect(generator.prompts).To(HaveLen(2))
			Expect(generator.prompts[1]).To(ContainSubstring("Summarize the following answer"))
			Expect(generator.prompts[1]).To(ContainSubstring("the answer"))
		})

		It("degrades to the answer alone when the summary call fails", func() {
			seedIndex()
			generator.failAfter = 1
			req := request()
			req.Summarize = true

			result, err := newPipeline(nil).Query(ctx, sess, req)
			Expect(err).To(MatchError(ErrSummarize))
			Expect(result).ToNot(BeNil())
			Expect(result.Answer).To(HavePrefix("the answer"))
			Expect(result.Summary).To(BeEmpty())
			Expect(sess.Len()).To(Equal(1))
			Expect(sess.History()[0].Summary).To(BeEmpty())
		})
	})

	Describe("generation failure", func() {
		It("aborts the query and leaves history untouched", func() {
			seedIndex()
			generator.failAfter = 0

			result, err := newPipeline(nil).Query(ctx, sess, request())
			Expect(err).To(MatchError(ErrGeneration))
			Expect(result).To(BeNil())
			Expect(sess.Len()).To(BeZero())
		})

		It("keeps the underlying cause reachable through the sentinels", func() {
			seedIndex()
			generator.failAfter = 0
			generator.failErr = fmt.Errorf("completion: %w", context.DeadlineExceeded)

			_, err := newPipeline(nil).Query(ctx, sess, request())
			Expect(err).To(MatchError(ErrGeneration))
			Expect(errors.Is(err, context.DeadlineExceeded)).To(BeTrue())

			generator = newFakeGenerator("the answer")
			generator.failAfter = 1
			generator.failErr = fmt.Errorf("completion: %w", context.DeadlineExceeded)
			req := request()
			req.Summarize = true

			_, err = newPipeline(nil).Query(ctx, sess, req)
			Expect(err).To(MatchError(ErrSummarize))
			Expect(errors.Is(err, context.DeadlineExceeded)).To(BeTrue())
		})
	})

	Describe("history accumulation", func() {
		It("appends one entry per answered query, in call order", func() {
			seedIndex()
			generator = newFakeGenerator("first", "second", "third")
			p := newPipeline(nil)

			for _, q := range []string{"q1", "q2", "q3"} {
				req := request()
				req.Question = q
				_, err := p.Query(ctx, sess, req)
				Expect(err).ToNot(HaveOccurred())
			}

			history := sess.History()
			Expect(history).To(HaveLen(3))
			Expect(history[0].Question).To(Equal("q1"))
			Expect(history[1].Question).To(Equal("q2"))
			Expect(history[2].Question).To(Equal("q3"))
			Expect(history[2].Answer).To(Equal("third"))
		})

		It("returns the full history snapshot on each result", func() {
			seedIndex()
			generator = newFakeGenerator("first", "second")
			p := newPipeline(nil)

			req := request()
			req.Question = "q1"
			_, err := p.Query(ctx, sess, req)
			Expect(err).ToNot(HaveOccurred())

			req.Question = "q2"
			result, err := p.Query(ctx, sess, req)
			Expect(err).ToNot(HaveOccurred())
			Expect(result.History).To(HaveLen(2))
		})
	})

	Describe("streaming progress", func() {
		It("emits progress while the answer call is in flight", func() {
			seedIndex()
			generator.delay = 200 * time.Millisecond
			var progress bytes.Buffer
			req := request()
			req.Stream = true

			_, err := newPipeline(&progress).Query(ctx, sess, req)
			Expect(err).ToNot(HaveOccurred())
			Expect(progress.String()).To(HavePrefix("Generating answer"))
			Expect(progress.String()).To(ContainSubstring("."))
			Expect(progress.String()).To(HaveSuffix("\n"))
		})

		It("stays silent when streaming is off", func() {
			seedIndex()
			var progress bytes.Buffer

			_, err := newPipeline(&progress).Query(ctx, sess, request())
			Expect(err).ToNot(HaveOccurred())
			Expect(progress.Len()).To(BeZero())
		})
	})
})
