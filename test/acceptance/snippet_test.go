package acceptance_test

import (
	"os"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("snippets", func() {
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

	It("saves, lists, and deletes a global snippet", func() {
		out, err := runLoom(home, "snippet", "save", "hello", "echo hi")
		Expect(err).NotTo(HaveOccurred(), out)

		out, err = runLoom(home, "snippet", "list")
		Expect(err).NotTo(HaveOccurred(), out)
		Expect(out).To(ContainSubstring("hello"))

		out, err = runLoom(home, "snippet", "delete", "hello")
		Expect(err).NotTo(HaveOccurred(), out)

		out, err = runLoom(home, "snippet", "list")
		Expect(err).NotTo(HaveOccurred(), out)
		Expect(out).NotTo(ContainSubstring("hello"))
	})

	It("refuses to run a snippet until the repo is trusted", func() {
		out, err := runLoom(home, "workspace", "create", repo)
		Expect(err).NotTo(HaveOccurred(), out)
		id := strings.Fields(out)[0]

		out, err = runLoom(home, "snippet", "save", "greet", "echo hi", repo)
		Expect(err).NotTo(HaveOccurred(), out)

		_, err = runLoom(home, "snippet", "run", id, "greet")
		Expect(err).To(HaveOccurred(), "expected an untrusted repo to refuse snippet execution")

		out, err = runLoom(home, "trust", "grant", repo)
		Expect(err).NotTo(HaveOccurred(), out)

		out, err = runLoom(home, "snippet", "run", id, "greet")
		Expect(err).NotTo(HaveOccurred(), out)
		Expect(out).To(ContainSubstring("exit code: 0"))
	})

	It("runs a global-only snippet without trusting the repo, and --verify still re-checks before spawn", func() {
		out, err := runLoom(home, "workspace", "create", repo)
		Expect(err).NotTo(HaveOccurred(), out)
		id := strings.Fields(out)[0]

		out, err = runLoom(home, "snippet", "save", "global-greet", "echo hi")
		Expect(err).NotTo(HaveOccurred(), out)

		out, err = runLoom(home, "snippet", "run", id, "global-greet")
		Expect(err).NotTo(HaveOccurred(), out, "global-only snippets should bypass the repo trust gate")
		Expect(out).To(ContainSubstring("exit code: 0"))

		out, err = runLoom(home, "snippet", "run", "--verify", id, "global-greet")
		Expect(err).NotTo(HaveOccurred(), out)
		Expect(out).To(ContainSubstring("exit code: 0"))
	})
})
