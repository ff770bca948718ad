package fs_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/pentest-portal/internal/upload/storage"
	"github.com/frahmantamala/pentest-portal/internal/upload/storage/fs"
)

var _ = Describe("Filesystem storage", func() {
	var (
		ctx context.Context
		s   *fs.Storage
	)

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		s, err = fs.New(GinkgoT().TempDir(), logger)
		Expect(err).NotTo(HaveOccurred())
	})

	It("puts, reads and deletes objects", func() {
		Expect(s.Put(ctx, "a1.png", strings.NewReader("png-bytes"), storage.ObjectMetadata{ContentType: "image/png"})).To(Succeed())
		Expect(s.Exists(ctx, "a1.png")).To(BeTrue())

		rc, err := s.Get(ctx, "a1.png")
		Expect(err).NotTo(HaveOccurred())
		body, err := io.ReadAll(rc)
		Expect(rc.Close()).To(Succeed())
		Expect(err).NotTo(HaveOccurred())
		Expect(string(body)).To(Equal("png-bytes"))

		Expect(s.Delete(ctx, "a1.png")).To(Succeed())
		Expect(s.Delete(ctx, "a1.png")).To(MatchError(storage.ErrObjectNotFound))

		_, err = s.Get(ctx, "a1.png")
		Expect(err).To(MatchError(storage.ErrObjectNotFound))
	})

	It("lists by prefix and skips temp files", func() {
		for _, key := range []string{"r-1.pdf", "r-2.pdf", "f-1.png"} {
			Expect(s.Put(ctx, key, strings.NewReader(key), storage.ObjectMetadata{})).To(Succeed())
		}

		all, err := s.List(ctx, "")
		Expect(err).NotTo(HaveOccurred())
		Expect(all).To(HaveLen(3))
		for _, o := range all {
			Expect(o.LastModified).NotTo(BeZero())
		}

		reports, err := s.List(ctx, "r-")
		Expect(err).NotTo(HaveOccurred())
		keys := []string{}
		for _, o := range reports {
			keys = append(keys, o.Key)
		}
		Expect(keys).To(ConsistOf("r-1.pdf", "r-2.pdf"))
	})

	It("rejects keys that escape the base path", func() {
		Expect(s.Put(ctx, "../escape", strings.NewReader("x"), storage.ObjectMetadata{})).NotTo(Succeed())
	})
})
