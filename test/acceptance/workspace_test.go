package acceptance_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// seedTestAgent writes a ~/.loom/config.json whose default agent is a
// real, harmless shell command, so acceptance specs don't depend on a
// "claude"/"codex"/"gemini" binary being installed.
func seedTestAgent(home string) {
	dir := filepath.Join(home, ".loom")
	Expect(os.MkdirAll(dir, 0755)).To(Succeed())
	cfg := map[string]any{
		"version": 1,
		"agents": map[string]any{
			"test": map[string]any{"command": "sh", "args": []string{"-c", "cat"}, "default_model": "default"},
		},
		"defaults":     map[string]any{"agent": "test", "theme": "system", "max_concurrent_agents": 8},
		"repositories": []any{},
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	Expect(err).NotTo(HaveOccurred())
	Expect(os.WriteFile(filepath.Join(dir, "config.json"), data, 0644)).To(Succeed())
}

var _ = Describe("workspace lifecycle", func() {
	var home, repo string

	BeforeEach(func() {
		var err error
		home, err = os.MkdirTemp("", "loom-home-*")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, home)

		repo, err = os.MkdirTemp("", "loom-repo-*")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, repo)

		seedTestAgent(home)
		initGitRepo(repo)
	})

	It("creates, lists, stops, and removes a workspace", func() {
		out, err := runLoom(home, "workspace", "create", repo)
		Expect(err).NotTo(HaveOccurred(), out)
		fields := strings.Fields(out)
		Expect(len(fields)).To(BeNumerically(">=", 1))
		id := fields[0]

		out, err = runLoom(home, "workspace", "list", repo)
		Expect(err).NotTo(HaveOccurred(), out)
		Expect(out).To(ContainSubstring(id[:8]))

		out, err = runLoom(home, "workspace", "stop", id)
		Expect(err).NotTo(HaveOccurred(), out)

		out, err = runLoom(home, "workspace", "remove", id)
		Expect(err).NotTo(HaveOccurred(), out)

		out, err = runLoom(home, "workspace", "list", repo)
		Expect(err).NotTo(HaveOccurred(), out)
		Expect(out).NotTo(ContainSubstring(id[:8]))
	})
})
