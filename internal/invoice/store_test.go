package invoice

import (
	"path/filepath"
	"time"

	ginkgo "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = ginkgo.Describe("BoltStore", func() {
	var store *BoltStore

	ginkgo.BeforeEach(func() {
		path := filepath.Join(ginkgo.GinkgoT().TempDir(), "session.db")
		var err error
		store, err = NewBoltStore(path)
		Expect(err).NotTo(HaveOccurred())
	})

	ginkgo.AfterEach(func() {
		Expect(store.Close()).To(Succeed())
	})

	ginkgo.It("round-trips entries in order without their file bytes", func() {
		now := time.Now().UTC().Truncate(time.Second)
		entries := []Entry{
			{ID: "b.pdf-2", Filename: "b.pdf", Status: StatusSucceeded, Record: &Record{}, Data: []byte("secret"), CreatedAt: now},
			{ID: "a.pdf-1", Filename: "a.pdf", Status: StatusFailed, Failure: FailureNetwork, Error: "mrežna greška", CreatedAt: now},
		}
		Expect(store.SaveSession(entries)).To(Succeed())

		loaded, err := store.LoadSession()
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded).To(HaveLen(2))
		Expect(loaded[0].ID).To(Equal("b.pdf-2"))
		Expect(loaded[1].ID).To(Equal("a.pdf-1"))
		Expect(loaded[0].HasOriginalBytes()).To(BeFalse())
		Expect(loaded[1].Failure).To(Equal(FailureNetwork))
	})

	ginkgo.It("replaces the previous session on save", func() {
		Expect(store.SaveSession([]Entry{{ID: "old"}})).To(Succeed())
		Expect(store.SaveSession([]Entry{{ID: "new"}})).To(Succeed())

		loaded, err := store.LoadSession()
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded).To(HaveLen(1))
		Expect(loaded[0].ID).To(Equal("new"))
	})

	ginkgo.It("returns an empty session from a fresh store", func() {
		loaded, err := store.LoadSession()
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded).To(BeEmpty())
	})
})
