package circuitbreaker_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/resilience/internal/circuitbreaker"
)

var _ = Describe("Backoff", func() {
	DescribeTable("open duration for the n-th opening",
		func(priorOpens int, expected time.Duration) {
			Expect(circuitbreaker.Backoff(time.Second, 2, 10*time.Second, priorOpens)).To(Equal(expected))
		},
		Entry("first opening", 0, time.Second),
		Entry("second opening", 1, 2*time.Second),
		Entry("third opening", 2, 4*time.Second),
		Entry("capped", 4, 10*time.Second),
		Entry("negative count", -1, time.Second),
		Entry("huge count", 10000, 10*time.Second),
	)

	It("should be monotonically non-decreasing and bounded", func() {
		previous := time.Duration(0)
		for n := 0; n < 100; n++ {
			d := circuitbreaker.Backoff(250*time.Millisecond, 1.5, time.Minute, n)
			Expect(d).To(BeNumerically(">=", previous))
			Expect(d).To(BeNumerically("<=", time.Minute))
			previous = d
		}
	})

	It("should not grow with a multiplier of one", func() {
		Expect(circuitbreaker.Backoff(time.Second, 1, time.Minute, 7)).To(Equal(time.Second))
	})

	It("should return zero for a non-positive open duration", func() {
		Expect(circuitbreaker.Backoff(0, 2, time.Minute, 3)).To(BeZero())
	})
})

var _ = Describe("Settings", func() {
	It("should inherit zero-valued overrides", func() {
		merged := circuitbreaker.DefaultSettings().Merge(circuitbreaker.Settings{
			FailureThreshold: 9,
			MaxBackoff:       time.Hour,
		})

		Expect(merged.FailureThreshold).To(Equal(9))
		Expect(merged.MaxBackoff).To(Equal(time.Hour))
		Expect(merged.Timeout).To(Equal(circuitbreaker.DefaultSettings().Timeout))
		Expect(merged.FailureRateThreshold).To(Equal(0.5))
	})
})
