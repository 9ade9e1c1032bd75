package preflight

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/expense-register/internal/ingest"
)

// heicHeader is the start of an ISO-BMFF file with a HEIC brand
var heicHeader = []byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'h', 'e', 'i', 'c', 0x00, 0x00, 0x00, 0x00}

var _ = Describe("Preparer", func() {
	var (
		srcDir   string
		staging  *LocalStorage
		preparer *Preparer
		path     string
		upload   string
		cleanup  func()
		err      error
	)

	write := func(name string, data []byte) string {
		p := filepath.Join(srcDir, name)
		Expect(os.WriteFile(p, data, 0644)).To(Succeed())
		return p
	}

	BeforeEach(func() {
		srcDir = GinkgoT().TempDir()
		var serr error
		staging, serr = NewLocalStorage(GinkgoT().TempDir())
		Expect(serr).NotTo(HaveOccurred())
		preparer = New(staging)
	})

	JustBeforeEach(func() {
		upload, cleanup, err = preparer.Prepare(ingest.NewReceiptFile("7", path))
	})

	When("the file is an ordinary JPEG", func() {
		BeforeEach(func() {
			path = write("a.jpg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00, 0x01})
		})

		It("uploads it as is", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(upload).To(Equal(path))
		})

		It("returns a cleanup that leaves the original alone", func() {
			cleanup()
			Expect(path).To(BeAnExistingFile())
		})
	})

	When("the file is a PNG", func() {
		BeforeEach(func() {
			path = write("b.png", []byte("\x89PNG\r\n\x1a\n"))
		})

		It("uploads it as is", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(upload).To(Equal(path))
		})
	})

	When("the file is empty", func() {
		BeforeEach(func() {
			path = write("empty.jpg", nil)
		})

		It("rejects it", func() {
			Expect(err).To(MatchError(ContainSubstring("empty")))
			Expect(cleanup).NotTo(BeNil())
		})
	})

	When("the file does not exist", func() {
		BeforeEach(func() {
			path = filepath.Join(srcDir, "gone.jpg")
		})

		It("rejects it", func() {
			Expect(err).To(MatchError(ContainSubstring("reading file")))
		})
	})

	When("a PDF cannot be opened", func() {
		BeforeEach(func() {
			path = write("broken.pdf", []byte("not a pdf at all"))
		})

		It("rejects it", func() {
			Expect(err).To(HaveOccurred())
		})
	})

	When("a HEIC image cannot be decoded", func() {
		BeforeEach(func() {
			path = write("c.heic", append(heicHeader, []byte("garbage")...))
		})

		It("rejects it and stages nothing", func() {
			Expect(err).To(MatchError(ContainSubstring("decoding HEIC/HEIF image")))
			entries, rerr := os.ReadDir(staging.basePath)
			Expect(rerr).NotTo(HaveOccurred())
			Expect(entries).To(BeEmpty())
		})
	})

	When("the extension is upper case", func() {
		BeforeEach(func() {
			path = write("E.HEIC", append(heicHeader, []byte("garbage")...))
		})

		It("is treated like its lower-case form", func() {
			Expect(err).To(MatchError(ContainSubstring("decoding HEIC/HEIF image")))
		})
	})

	When("a .jpg file is really HEIC", func() {
		BeforeEach(func() {
			path = write("d.jpg", append(heicHeader, []byte("garbage")...))
		})

		It("attempts the conversion", func() {
			Expect(err).To(MatchError(ContainSubstring("decoding HEIC/HEIF image")))
		})
	})
})

var _ = DescribeTable("isHEICFormat",
	func(data []byte, expected bool) {
		Expect(isHEICFormat(data)).To(Equal(expected))
	},
	Entry("heic brand", heicHeader, true),
	Entry("mif1 brand", []byte{0, 0, 0, 0x18, 'f', 't', 'y', 'p', 'm', 'i', 'f', '1'}, true),
	Entry("mp4 brand", []byte{0, 0, 0, 0x18, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm'}, false),
	Entry("jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0x10, 'J', 'F', 'I', 'F', 0, 1}, false),
	Entry("too short", []byte("ftyp"), false),
)
