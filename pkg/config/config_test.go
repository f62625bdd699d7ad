package config_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	. "localanswer/pkg/config"
)

var _ = Describe("Load", func() {
	var tempDir string

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "config_test_*")
		Expect(err).ToNot(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tempDir)
	})

	It("falls back to defaults when the file is absent", func() {
		cfg, err := Load(filepath.Join(tempDir, "missing.yaml"))
		Expect(err).ToNot(HaveOccurred())
		Expect(cfg.ListenAddress).To(Equal(":8080"))
		Expect(cfg.Engine.Type).To(Equal("chromem"))
		Expect(cfg.Retrieval.TopK).To(Equal(5))
		Expect(*cfg.Retrieval.MinScore).To(BeNumerically("~", 0.2, 1e-9))
		Expect(cfg.Retrieval.Metric).To(Equal("cosine"))
		Expect(cfg.MaxChunkSize).To(Equal(1000))
	})

	It("reads values from the file and fills in missing defaults", func() {
		path := filepath.Join(tempDir, "config.yaml")
		Expect(os.WriteFile(path, []byte(`
listen_address: ":9999"
retrieval:
  top_k: 8
openai:
  chat_model: my-model
`), 0644)).To(Succeed())

		cfg, err := Load(path)
		Expect(err).ToNot(HaveOccurred())
		Expect(cfg.ListenAddress).To(Equal(":9999"))
		Expect(cfg.Retrieval.TopK).To(Equal(8))
		Expect(*cfg.Retrieval.MinScore).To(BeNumerically("~", 0.2, 1e-9))
		Expect(cfg.OpenAI.ChatModel).To(Equal("my-model"))
		Expect(cfg.OpenAI.EmbeddingModel).To(Equal("text-embedding-3-small"))
	})

	It("keeps an explicit zero score threshold", func() {
		path := filepath.Join(tempDir, "config.yaml")
		Expect(os.WriteFile(path, []byte(`
retrieval:
  min_score: 0
`), 0644)).To(Succeed())

		cfg, err := Load(path)
		Expect(err).ToNot(HaveOccurred())
		Expect(*cfg.Retrieval.MinScore).To(BeZero())
	})

	It("rejects malformed YAML", func() {
		path := filepath.Join(tempDir, "config.yaml")
		Expect(os.WriteFile(path, []byte("listen_address: [not closed"), 0644)).To(Succeed())

		_, err := Load(path)
		Expect(err).To(HaveOccurred())
	})

	It("lets the environment override deployment fields", func() {
		os.Setenv("CHAT_MODEL", "env-model")
		os.Setenv("VECTOR_ENGINE", "postgres")
		defer os.Unsetenv("CHAT_MODEL")
		defer os.Unsetenv("VECTOR_ENGINE")

		cfg, err := Load(filepath.Join(tempDir, "missing.yaml"))
		Expect(err).ToNot(HaveOccurred())
		Expect(cfg.OpenAI.ChatModel).To(Equal("env-model"))
		Expect(cfg.Engine.Type).To(Equal("postgres"))
	})

	It("resolves the API key from the configured environment variable", func() {
		os.Setenv("OPENAI_API_KEY", "sk-test")
		defer os.Unsetenv("OPENAI_API_KEY")

		cfg, err := Load(filepath.Join(tempDir, "missing.yaml"))
		Expect(err).ToNot(HaveOccurred())
		Expect(cfg.APIKey()).To(Equal("sk-test"))
	})
})
