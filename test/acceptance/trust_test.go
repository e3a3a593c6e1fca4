package acceptance_test

import (
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("trust", func() {
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

	It("starts untrusted, becomes trusted after grant, and reverts after revoke", func() {
		out, err := runLoom(home, "trust", "check", repo)
		Expect(err).NotTo(HaveOccurred(), out)
		Expect(out).To(ContainSubstring("untrusted"))

		out, err = runLoom(home, "trust", "grant", repo)
		Expect(err).NotTo(HaveOccurred(), out)

		out, err = runLoom(home, "trust", "check", repo)
		Expect(err).NotTo(HaveOccurred(), out)
		Expect(out).To(ContainSubstring("trusted"))
		Expect(out).NotTo(ContainSubstring("untrusted"))

		out, err = runLoom(home, "trust", "revoke", repo)
		Expect(err).NotTo(HaveOccurred(), out)

		out, err = runLoom(home, "trust", "check", repo)
		Expect(err).NotTo(HaveOccurred(), out)
		Expect(out).To(ContainSubstring("untrusted"))
	})
})
