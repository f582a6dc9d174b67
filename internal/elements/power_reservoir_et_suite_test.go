package elements

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/hydrosim/internal/dynamo"
)

var _ = Describe("PowerReservoirET", func() {
	var fr *PowerReservoirET

	BeforeEach(func() {
		var err error
		fr, err = NewPowerReservoirET("FR", referenceParams(), 20, defaultApprox())
		Expect(err).NotTo(HaveOccurred())
		Expect(fr.SetTimestep(1)).To(Succeed())
		Expect(fr.SetInput(dynamo.Series{10, 0, 0}, dynamo.Series{0, 2, 2})).To(Succeed())
	})

	Context("construction", func() {
		It("should reject invalid parameters", func() {
			_, err := NewPowerReservoirET("FR", PowerReservoirETParams{K: 0.1, Alpha: 0, Ce: 1, M: 5}, 20, defaultApprox())
			Expect(err).To(MatchError(dynamo.ErrInvalidParameter))
		})

		It("should reject a negative initial storage", func() {
			_, err := NewPowerReservoirET("FR", referenceParams(), -1, defaultApprox())
			Expect(err).To(MatchError(dynamo.ErrInvalidParameter))
		})

		It("should require an approximator", func() {
			_, err := NewPowerReservoirET("FR", referenceParams(), 20, nil)
			Expect(err).To(MatchError(dynamo.ErrInvalidParameter))
		})

		It("should reject an unknown architecture", func() {
			_, err := NewPowerReservoirET("FR", referenceParams(), 20, defaultApprox(), WithArchitecture("gpu"))
			Expect(err).To(MatchError(dynamo.ErrInvalidParameter))
		})
	})

	Context("inputs", func() {
		It("should reject series of different lengths", func() {
			err := fr.SetInput(dynamo.Series{1, 2, 3}, dynamo.Series{1, 2})
			Expect(err).To(MatchError(dynamo.ErrInputMismatch))
		})

		It("should reject empty series", func() {
			err := fr.SetInput(dynamo.Series{}, dynamo.Series{})
			Expect(err).To(MatchError(dynamo.ErrInputMismatch))
		})

		It("should reject the wrong number of inputs", func() {
			err := fr.SetInputs([]dynamo.Series{{1, 2}})
			Expect(err).To(MatchError(dynamo.ErrInputMismatch))
		})

		It("should fail to solve without a timestep", func() {
			r, err := NewPowerReservoirET("FR", referenceParams(), 20, defaultApprox())
			Expect(err).NotTo(HaveOccurred())
			Expect(r.SetInput(dynamo.Series{1}, dynamo.Series{0})).To(Succeed())
			_, err = r.Output()
			Expect(err).To(MatchError(dynamo.ErrInputMismatch))
		})

		It("should fail to solve without inputs", func() {
			r, err := NewPowerReservoirET("FR", referenceParams(), 20, defaultApprox())
			Expect(err).NotTo(HaveOccurred())
			Expect(r.SetTimestep(1)).To(Succeed())
			_, err = r.Output()
			Expect(err).To(MatchError(dynamo.ErrInputMismatch))
		})
	})

	Context("parameters", func() {
		It("should update a subset of parameters", func() {
			Expect(fr.SetParameters(map[string]float64{"k": 0.2})).To(Succeed())
			Expect(fr.Params().K).To(Equal(0.2))
			Expect(fr.Params().M).To(Equal(5.0))
		})

		It("should leave parameters unchanged on an unknown name", func() {
			err := fr.SetParameters(map[string]float64{"k": 0.3, "bogus": 1})
			Expect(err).To(MatchError(dynamo.ErrInvalidParameter))
			Expect(fr.Params()).To(Equal(referenceParams()))
		})

		It("should leave parameters unchanged on an invalid value", func() {
			Expect(fr.SetParameters(map[string]float64{"m": 0})).To(MatchError(dynamo.ErrInvalidParameter))
			Expect(fr.Params()).To(Equal(referenceParams()))
		})

		It("should return selected parameters", func() {
			got, err := fr.Parameters("k", "Ce")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(map[string]float64{"k": 0.1, "Ce": 1}))

			_, err = fr.Parameters("nope")
			Expect(err).To(MatchError(dynamo.ErrInvalidParameter))
		})

		It("should build parameters from a complete map", func() {
			p, err := PowerReservoirETParamsFromMap(map[string]float64{"k": 0.1, "alpha": 1, "Ce": 1, "m": 5})
			Expect(err).NotTo(HaveOccurred())
			Expect(p).To(Equal(referenceParams()))

			_, err = PowerReservoirETParamsFromMap(map[string]float64{"k": 0.1})
			Expect(err).To(MatchError(dynamo.ErrInvalidParameter))
		})
	})

	Context("state ordering", func() {
		It("should refuse AET before Output", func() {
			_, err := fr.AET()
			Expect(err).To(MatchError(dynamo.ErrStateOrdering))
		})

		It("should refuse AET after the parameters change", func() {
			_, err := fr.Output()
			Expect(err).NotTo(HaveOccurred())
			Expect(fr.SetParameters(map[string]float64{"Ce": 0.5})).To(Succeed())
			_, err = fr.AET()
			Expect(err).To(MatchError(dynamo.ErrStateOrdering))
		})

		It("should refuse AET after a reset", func() {
			_, err := fr.Output()
			Expect(err).NotTo(HaveOccurred())
			fr.ResetStates()
			_, err = fr.AET()
			Expect(err).To(MatchError(dynamo.ErrStateOrdering))
		})

		It("should return AET from the last solve", func() {
			_, err := fr.Output()
			Expect(err).NotTo(HaveOccurred())
			aet, err := fr.AET()
			Expect(err).NotTo(HaveOccurred())
			Expect(aet).To(HaveLen(3))
			Expect(aet[0]).To(BeNumerically("~", 0, 1e-12))
		})
	})

	Context("states", func() {
		It("should carry the final storage into the next run", func() {
			q, err := fr.Output()
			Expect(err).NotTo(HaveOccurred())
			states, err := fr.StateSeries()
			Expect(err).NotTo(HaveOccurred())
			Expect(fr.States()[StateS0]).To(Equal(states[2]))

			again, err := fr.Output()
			Expect(err).NotTo(HaveOccurred())
			Expect(again[0]).NotTo(BeNumerically("~", q[0], 1e-9))
		})

		It("should reproduce the first run after a reset", func() {
			first, err := fr.Output()
			Expect(err).NotTo(HaveOccurred())
			fr.ResetStates()
			Expect(fr.States()[StateS0]).To(Equal(20.0))
			second, err := fr.Output()
			Expect(err).NotTo(HaveOccurred())
			Expect(second).To(Equal(first))
		})

		It("should start from an explicitly set storage", func() {
			Expect(fr.SetStates(map[string]float64{StateS0: 0})).To(Succeed())
			Expect(fr.SetInput(dynamo.Series{0, 0}, dynamo.Series{0, 0})).To(Succeed())
			q, err := fr.Output()
			Expect(err).NotTo(HaveOccurred())
			for _, v := range q {
				Expect(v).To(BeNumerically("~", 0, 1e-9))
			}
		})

		It("should reject unknown or negative states", func() {
			Expect(fr.SetState("S1", 1)).To(MatchError(dynamo.ErrInvalidParameter))
			Expect(fr.SetState(StateS0, -1)).To(MatchError(dynamo.ErrInvalidParameter))
			Expect(fr.StateNames()).To(Equal([]string{StateS0}))
		})
	})
})
