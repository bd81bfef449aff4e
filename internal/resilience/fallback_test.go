package resilience_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/resilience/internal/resilience"
)

var _ = Describe("FallbackRegistry", func() {
	var registry *resilience.FallbackRegistry

	BeforeEach(func() {
		registry = resilience.NewFallbackRegistry()
	})

	It("should look up registered strategies", func() {
		Expect(registry.Register("cached", resilience.Static("stale"))).To(Succeed())
		Expect(registry.Register("empty", resilience.Static(nil))).To(Succeed())

		fb, found := registry.Lookup("cached")
		Expect(found).To(BeTrue())
		value, err := fb(context.Background(), errBoom)
		Expect(err).NotTo(HaveOccurred())
		Expect(value).To(Equal("stale"))

		_, found = registry.Lookup("missing")
		Expect(found).To(BeFalse())

		Expect(registry.Names()).To(Equal([]string{"cached", "empty"}))
	})

	It("should reject invalid registrations", func() {
		Expect(registry.Register("", resilience.Static(1))).NotTo(Succeed())
		Expect(registry.Register("nil", nil)).NotTo(Succeed())
	})
})

var _ = Describe("Deferred", func() {
	It("should queue failed calls for review", func() {
		queue := resilience.NewReviewQueue(1)
		m := resilience.NewManager(testSettings())

		result, err := m.Execute(context.Background(), "payments", failing, resilience.Deferred(queue))
		Expect(err).NotTo(HaveOccurred())

		ticket, isTicket := result.(resilience.ReviewTicket)
		Expect(isTicket).To(BeTrue())
		Expect(ticket.ID).NotTo(BeEmpty())
		Expect(ticket.Service).To(Equal("payments"))
		Expect(ticket.Kind).To(Equal(resilience.KindOperationError))
		Expect(ticket.Cause).To(ContainSubstring("boom"))
		Expect(queue.Pending()).To(ConsistOf(ticket))

		_, err = m.Execute(context.Background(), "payments", failing, resilience.Deferred(queue))
		Expect(errors.Is(err, resilience.ErrReviewQueueFull)).To(BeTrue())
		Expect(resilience.KindOf(err)).To(Equal(resilience.KindFallbackError))

		taken, found := queue.Take()
		Expect(found).To(BeTrue())
		Expect(taken).To(Equal(ticket))
		Expect(queue.Len()).To(BeZero())
	})
})
