package sim

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Vision delivery", func() {
	var cfg Config

	BeforeEach(func() {
		cfg = DefaultConfig()
		cfg.Duration = 2
	})

	run := func() *Result {
		s, err := New(cfg)
		Expect(err).NotTo(HaveOccurred())
		res, err := s.Run(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Errors).To(BeEmpty())
		return res
	}

	It("keeps a horizon of history while frames are replayed", func() {
		s, err := New(cfg)
		Expect(err).NotTo(HaveOccurred())
		loop, err := newClosedLoop(cfg, s.stepper)
		Expect(err).NotTo(HaveOccurred())

		var last Sample
		for i := 0; i < 100; i++ {
			last, err = loop.tick(float64(i) * cfg.Dt)
			Expect(err).NotTo(HaveOccurred())
		}
		Expect(loop.est.HistoryLen()).To(BeNumerically("~", 76, 2))
		Expect(len(loop.pending)).To(BeNumerically("<=", 1))
		Expect(last.EstimatedPose().Distance(last.TruthPose())).To(BeNumerically("<", 0.2))
	})

	It("keeps running when every frame is older than the history", func() {
		cfg.Vision.Latency = 0.5
		cfg.Estimator.Horizon = 0.2
		res := run()
		Expect(res.StepsTaken).To(Equal(100))
	})

	It("runs with vision disabled", func() {
		cfg.Vision.Enabled = false
		res := run()
		Expect(res.StepsTaken).To(Equal(100))
	})
})
