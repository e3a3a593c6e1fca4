package acceptance_test

import (
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("shortcut", func() {
	var home string

	BeforeEach(func() {
		var err error
		home, err = os.MkdirTemp("", "loom-home-*")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, home)

		seedTestAgent(home)
	})

	It("lists built-in defaults and persists a rebind", func() {
		out, err := runLoom(home, "shortcut", "list")
		Expect(err).NotTo(HaveOccurred(), out)
		Expect(out).To(ContainSubstring("quit"))
		Expect(out).To(ContainSubstring("ctrl+q"))

		out, err = runLoom(home, "shortcut", "set", "quit", "ctrl+shift+q")
		Expect(err).NotTo(HaveOccurred(), out)

		out, err = runLoom(home, "shortcut", "list")
		Expect(err).NotTo(HaveOccurred(), out)
		Expect(out).To(ContainSubstring("ctrl+shift+q"))
	})
})
