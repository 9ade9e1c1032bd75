package ingest

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Ingester", func() {
	var (
		driver   *fakeDriver
		clock    *fakeClock
		preparer *fakePreparer
		index    *ExistingIndex
		cfg      Config
		ingester *Ingester
		ctx      context.Context
		file     ReceiptFile
		outcome  Outcome
	)

	BeforeEach(func() {
		driver = newFakeDriver()
		clock = newFakeClock()
		preparer = newFakePreparer()
		index = NewExistingIndex()
		cfg = newTestConfig()
		ctx = context.Background()
		file = NewReceiptFile("7", "/receipts/7/a.jpg")
		driver.analyses["a.jpg"] = analysis{date: "2024-01-05", amount: "1200", polls: 3}
		driver.analyses["b.jpg"] = analysis{date: "2024-01-05", amount: "1200", polls: 1}
	})

	JustBeforeEach(func() {
		ingester = NewIngesterWithPreparer(driver, NewPoller(clock), preparer, index, cfg)
		outcome = ingester.Ingest(ctx, file)
	})

	When("the file is new", func() {
		It("registers it", func() {
			Expect(outcome.Kind).To(Equal(Registered))
			Expect(outcome.Err).NotTo(HaveOccurred())
		})

		It("uploads the prepared file", func() {
			Expect(preparer.prepared).To(Equal([]string{"/receipts/7/a.jpg"}))
			Expect(driver.uploads).To(Equal([]string{"/receipts/7/a.jpg"}))
		})

		It("submits the analyzed values with the folder number", func() {
			Expect(driver.submissions).To(Equal([]submission{
				{file: "a.jpg", folder: "7", date: "2024-01-05", amount: "1200"},
			}))
		})

		It("records the analyzed key", func() {
			Expect(outcome.Key).To(Equal(RecordKey{Date: "2024-01-05", Amount: "1200"}))
			Expect(outcome.AnalysisTimedOut).To(BeFalse())
		})

		It("observes the acknowledgment", func() {
			Expect(outcome.AckObserved).To(BeTrue())
		})

		It("waits only as long as analysis and the post-submit pause take", func() {
			Expect(clock.slept).To(Equal(3*cfg.Timing.PollInterval + cfg.Timing.AfterSubmit))
		})

		It("cleans up the prepared file", func() {
			Expect(preparer.cleaned).To(Equal(1))
		})
	})

	When("the key is already registered once", func() {
		BeforeEach(func() {
			index.Add(NewRecordKey("2024-01-05", "¥1,200"))
		})

		It("skips the file and consumes the match", func() {
			Expect(outcome.Kind).To(Equal(Skipped))
			Expect(index.Remaining(outcome.Key)).To(Equal(0))
			Expect(driver.submissions).To(BeEmpty())
		})

		It("registers a second file with identical values", func() {
			second := ingester.Ingest(ctx, NewReceiptFile("7", "/receipts/7/b.jpg"))
			Expect(second.Kind).To(Equal(Registered))
			Expect(driver.submissions).To(HaveLen(1))
			Expect(driver.submissions[0].file).To(Equal("b.jpg"))
		})
	})

	When("more files share a key than the index holds", func() {
		BeforeEach(func() {
			index.Add(NewRecordKey("2024-01-05", "1200"))
			index.Add(NewRecordKey("2024-01-05", "1200"))
			for _, name := range []string{"c.jpg", "d.jpg", "e.jpg"} {
				driver.analyses[name] = analysis{date: "2024-01-05", amount: "1200"}
			}
		})

		It("skips at most as many as the index holds", func() {
			kinds := []OutcomeKind{outcome.Kind}
			for _, name := range []string{"c.jpg", "d.jpg", "e.jpg"} {
				kinds = append(kinds, ingester.Ingest(ctx, NewReceiptFile("7", "/receipts/7/"+name)).Kind)
			}
			Expect(kinds).To(Equal([]OutcomeKind{Skipped, Skipped, Registered, Registered}))
			Expect(driver.submissions).To(HaveLen(2))
		})
	})

	When("analysis yields an amount of zero", func() {
		BeforeEach(func() {
			driver.analyses["a.jpg"] = analysis{date: "2024-01-05", amount: "0", polls: 1}
		})

		It("treats the analysis as complete", func() {
			Expect(outcome.AnalysisTimedOut).To(BeFalse())
			Expect(outcome.Key.Amount).To(Equal("0"))
			Expect(clock.slept).To(Equal(cfg.Timing.PollInterval + cfg.Timing.AfterSubmit))
		})

		When("the index holds that zero amount", func() {
			BeforeEach(func() {
				index.Add(NewRecordKey("2024-01-05", "¥0"))
			})

			It("skips the file", func() {
				Expect(outcome.Kind).To(Equal(Skipped))
			})
		})
	})

	When("analysis never finishes", func() {
		BeforeEach(func() {
			driver.analyses["a.jpg"] = analysis{never: true}
			index.Add(NewRecordKey("2024-01-05", "1200"))
		})

		It("gives up at the analysis ceiling", func() {
			Expect(outcome.AnalysisTimedOut).To(BeTrue())
			Expect(clock.slept).To(Equal(cfg.Timing.AnalysisTimeout + cfg.Timing.AfterSubmit))
		})

		It("continues with the empty values and registers the file", func() {
			Expect(outcome.Kind).To(Equal(Registered))
			Expect(driver.submissions).To(Equal([]submission{{file: "a.jpg", folder: "7"}}))
		})

		It("skips the duplicate check", func() {
			Expect(index.Total()).To(Equal(1))
		})

		When("strict analysis is enabled", func() {
			BeforeEach(func() {
				cfg.StrictAnalysis = true
			})

			It("fails the file without submitting", func() {
				Expect(outcome.Kind).To(Equal(Failed))
				Expect(errors.Is(outcome.Err, ErrAnalysisTimeout)).To(BeTrue())
				Expect(driver.submissions).To(BeEmpty())
			})
		})
	})

	When("the amount field cannot be read while polling", func() {
		BeforeEach(func() {
			driver.valueErr = errBoom
		})

		It("keeps polling until the ceiling and then continues", func() {
			Expect(outcome.AnalysisTimedOut).To(BeTrue())
			Expect(outcome.Kind).To(Equal(Registered))
		})
	})

	When("the submission is not acknowledged", func() {
		BeforeEach(func() {
			driver.ackVisible = false
		})

		It("assumes the registration went through", func() {
			Expect(outcome.Kind).To(Equal(Registered))
			Expect(outcome.AckObserved).To(BeFalse())
		})

		It("waits at most the acknowledgment ceiling", func() {
			Expect(clock.slept).To(Equal(3*cfg.Timing.PollInterval + cfg.Timing.AckTimeout + cfg.Timing.AfterSubmit))
		})
	})

	When("the submit control is missing", func() {
		BeforeEach(func() {
			driver.submitMissing = true
		})

		It("fails the file", func() {
			Expect(outcome.Kind).To(Equal(Failed))
			Expect(errors.Is(outcome.Err, ErrDriver)).To(BeTrue())
			Expect(driver.submissions).To(BeEmpty())
		})
	})

	When("clicking submit fails", func() {
		BeforeEach(func() {
			driver.submitErr = errBoom
		})

		It("fails the file with the driver error", func() {
			Expect(outcome.Kind).To(Equal(Failed))
			Expect(errors.Is(outcome.Err, ErrDriver)).To(BeTrue())
			Expect(errors.Is(outcome.Err, errBoom)).To(BeTrue())
		})
	})

	When("the folder number cannot be entered", func() {
		BeforeEach(func() {
			driver.folderErr = errBoom
		})

		It("fails the file", func() {
			Expect(outcome.Kind).To(Equal(Failed))
			Expect(driver.submissions).To(BeEmpty())
		})
	})

	When("the upload fails", func() {
		BeforeEach(func() {
			driver.uploadErr = errBoom
		})

		It("fails the file before polling", func() {
			Expect(outcome.Kind).To(Equal(Failed))
			Expect(errors.Is(outcome.Err, ErrDriver)).To(BeTrue())
			Expect(clock.slept).To(BeZero())
		})

		It("still cleans up the prepared file", func() {
			Expect(preparer.cleaned).To(Equal(1))
		})
	})

	When("the driver panics", func() {
		BeforeEach(func() {
			driver.panicOnUpload = true
		})

		It("fails the file instead of crashing", func() {
			Expect(outcome.Kind).To(Equal(Failed))
			Expect(errors.Is(outcome.Err, ErrDriver)).To(BeTrue())
		})
	})

	When("the file is rejected before upload", func() {
		BeforeEach(func() {
			preparer.rejects["a.jpg"] = errBoom
		})

		It("fails the file without touching the form", func() {
			Expect(outcome.Kind).To(Equal(Failed))
			Expect(errors.Is(outcome.Err, ErrPreflight)).To(BeTrue())
			Expect(driver.uploads).To(BeEmpty())
		})
	})

	When("the run is interrupted while the file is in flight", func() {
		BeforeEach(func() {
			c, cancel := context.WithCancel(context.Background())
			cancel()
			ctx = c
		})

		It("finishes the file", func() {
			Expect(outcome.Kind).To(Equal(Registered))
			Expect(driver.submissions).To(HaveLen(1))
		})
	})

	Describe("NewIngester", func() {
		It("uploads files unchanged", func() {
			plain := NewIngester(driver, NewPoller(clock), index, cfg)
			out := plain.Ingest(ctx, NewReceiptFile("7", "/receipts/7/b.jpg"))
			Expect(out.Kind).To(Equal(Registered))
			Expect(driver.uploads).To(ContainElement("/receipts/7/b.jpg"))
		})
	})

	Describe("ClearForm", func() {
		It("clicks the clear control and resets the fields", func() {
			driver.values[cfg.UI.Form.Amount.Selector] = "999"
			ingester.ClearForm(ctx)
			Expect(driver.clears).To(Equal(1))
			Expect(driver.values).NotTo(HaveKey(cfg.UI.Form.Amount.Selector))
		})
	})
})
