package network

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/hydrosim/internal/dynamo"
	"github.com/san-kum/hydrosim/internal/elements"
	"github.com/san-kum/hydrosim/internal/integrators"
	"github.com/san-kum/hydrosim/internal/rootfind"
)

func approx() dynamo.Approximator {
	return integrators.NewImplicitEuler(rootfind.NewPegasus(dynamo.DefaultSolverConfig()))
}

// splitRouting builds UR -> split -> (SR, FR) -> junction.
func splitRouting(workers int) *Network {
	ur, err := elements.NewUnsaturatedReservoir("UR", elements.UnsaturatedReservoirParams{Smax: 200, Ce: 1, M: 0.01, Beta: 2}, 100, approx())
	Expect(err).NotTo(HaveOccurred())
	split, err := elements.NewSplitter("split", 0.3)
	Expect(err).NotTo(HaveOccurred())
	sr, err := elements.NewPowerReservoir("SR", elements.PowerReservoirParams{K: 0.001, Alpha: 1}, 100, approx())
	Expect(err).NotTo(HaveOccurred())
	fr, err := elements.NewPowerReservoir("FR", elements.PowerReservoirParams{K: 0.1, Alpha: 1}, 2, approx())
	Expect(err).NotTo(HaveOccurred())
	junction, err := elements.NewJunction("junction", [][]int{{0, 1}})
	Expect(err).NotTo(HaveOccurred())

	net, err := New("m04", []Node{
		{Element: junction, Inputs: []Port{Out("SR", 0), Out("FR", 0)}},
		{Element: ur, Inputs: []Port{In(0), In(1)}},
		{Element: split, Inputs: []Port{Out("UR", 0)}},
		{Element: sr, Inputs: []Port{Out("split", 0)}},
		{Element: fr, Inputs: []Port{Out("split", 1)}},
	}, []Port{Out("junction", 0)}, WithWorkers(workers))
	Expect(err).NotTo(HaveOccurred())
	Expect(net.SetTimestep(1)).To(Succeed())
	return net
}

var _ = Describe("Network", func() {
	p := dynamo.Series{10, 0, 25, 3, 0, 0}
	pet := dynamo.Series{1, 2, 0.5, 1, 3, 3}

	Context("topology", func() {
		It("should order nodes by dependency regardless of declaration order", func() {
			net := splitRouting(1)
			Expect(net.Levels()).To(Equal([][]string{{"UR"}, {"split"}, {"SR", "FR"}, {"junction"}}))
			Expect(net.NumInputs()).To(Equal(2))
		})

		It("should reject cycles", func() {
			a, _ := elements.NewSplitter("a", 0.5)
			b, _ := elements.NewSplitter("b", 0.5)
			_, err := New("loop", []Node{
				{Element: a, Inputs: []Port{Out("b", 0)}},
				{Element: b, Inputs: []Port{Out("a", 0)}},
			}, []Port{Out("a", 1)})
			Expect(err).To(MatchError(dynamo.ErrCycle))
		})

		It("should reject references to unknown nodes", func() {
			a, _ := elements.NewSplitter("a", 0.5)
			_, err := New("dangling", []Node{
				{Element: a, Inputs: []Port{Out("ghost", 0)}},
			}, []Port{Out("a", 0)})
			Expect(err).To(MatchError(dynamo.ErrUnknownNode))

			_, err = New("dangling", []Node{
				{Element: a, Inputs: []Port{In(0)}},
			}, []Port{Out("ghost", 0)})
			Expect(err).To(MatchError(dynamo.ErrUnknownNode))
		})

		It("should reject duplicate ids", func() {
			a, _ := elements.NewSplitter("a", 0.5)
			b, _ := elements.NewSplitter("a", 0.2)
			_, err := New("dup", []Node{
				{Element: a, Inputs: []Port{In(0)}},
				{Element: b, Inputs: []Port{In(0)}},
			}, []Port{Out("a", 0)})
			Expect(err).To(MatchError(dynamo.ErrInvalidParameter))
		})
	})

	Context("evaluation", func() {
		It("should match composing the elements by hand", func() {
			net := splitRouting(1)
			Expect(net.SetInputs([]dynamo.Series{p, pet})).To(Succeed())
			out, err := net.Outputs()
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(HaveLen(1))

			ur, _ := elements.NewUnsaturatedReservoir("UR", elements.UnsaturatedReservoirParams{Smax: 200, Ce: 1, M: 0.01, Beta: 2}, 100, approx())
			sr, _ := elements.NewPowerReservoir("SR", elements.PowerReservoirParams{K: 0.001, Alpha: 1}, 100, approx())
			fr, _ := elements.NewPowerReservoir("FR", elements.PowerReservoirParams{K: 0.1, Alpha: 1}, 2, approx())
			for _, r := range []dynamo.Timed{ur, sr, fr} {
				Expect(r.SetTimestep(1)).To(Succeed())
			}
			Expect(ur.SetInput(p, pet)).To(Succeed())
			q, err := ur.Output()
			Expect(err).NotTo(HaveOccurred())
			split := 0.3
			Expect(sr.SetInput(q.Scale(split))).To(Succeed())
			Expect(fr.SetInput(q.Scale(1 - split))).To(Succeed())
			qs, err := sr.Output()
			Expect(err).NotTo(HaveOccurred())
			qf, err := fr.Output()
			Expect(err).NotTo(HaveOccurred())

			want := qs.Add(qf)
			for i := range want {
				Expect(out[0][i]).To(BeNumerically("~", want[i], 1e-12))
			}
		})

		It("should give the same result with concurrent levels", func() {
			seq := splitRouting(1)
			par := splitRouting(4)
			Expect(seq.SetInputs([]dynamo.Series{p, pet})).To(Succeed())
			Expect(par.SetInputs([]dynamo.Series{p, pet})).To(Succeed())
			a, err := seq.Outputs()
			Expect(err).NotTo(HaveOccurred())
			b, err := par.Outputs()
			Expect(err).NotTo(HaveOccurred())
			Expect(b).To(Equal(a))
		})

		It("should refuse AET before evaluation", func() {
			net := splitRouting(1)
			_, err := net.AET()
			Expect(err).To(MatchError(dynamo.ErrStateOrdering))
		})

		It("should reproduce a run after resetting states", func() {
			net := splitRouting(1)
			Expect(net.SetInputs([]dynamo.Series{p, pet})).To(Succeed())
			first, err := net.Outputs()
			Expect(err).NotTo(HaveOccurred())
			net.ResetStates()
			second, err := net.Outputs()
			Expect(err).NotTo(HaveOccurred())
			Expect(second).To(Equal(first))
		})

		It("should reject mismatched inputs", func() {
			net := splitRouting(1)
			Expect(net.SetInputs([]dynamo.Series{p})).To(MatchError(dynamo.ErrInputMismatch))
			Expect(net.SetInputs([]dynamo.Series{p, pet[:2]})).To(MatchError(dynamo.ErrInputMismatch))
			_, err := net.Outputs()
			Expect(err).To(MatchError(dynamo.ErrInputMismatch))
		})
	})

	Context("parameters and states", func() {
		It("should prefix names with network and node ids", func() {
			net := splitRouting(1)
			params := net.GetParams()
			Expect(params).To(HaveKeyWithValue("m04_FR_k", 0.1))
			Expect(params).To(HaveKeyWithValue("m04_split_split-par", 0.3))
			Expect(params).To(HaveKeyWithValue("m04_UR_Smax", 200.0))
			Expect(net.StateNames()).To(Equal([]string{"m04_FR_S0", "m04_SR_S0", "m04_UR_S0"}))
		})

		It("should route updates to the right node", func() {
			net := splitRouting(1)
			Expect(net.SetParameters(map[string]float64{"m04_FR_k": 0.2, "m04_split_split-par": 0.5})).To(Succeed())
			got, err := net.Parameters("m04_FR_k", "m04_split_split-par", "m04_SR_k")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(map[string]float64{"m04_FR_k": 0.2, "m04_split_split-par": 0.5, "m04_SR_k": 0.001}))

			Expect(net.SetStates(map[string]float64{"m04_UR_S0": 40})).To(Succeed())
			Expect(net.States()).To(HaveKeyWithValue("m04_UR_S0", 40.0))
		})

		It("should reject unknown names without touching any node", func() {
			net := splitRouting(1)
			err := net.SetParameters(map[string]float64{"m04_FR_k": 0.2, "m04_XX_k": 1})
			Expect(err).To(MatchError(dynamo.ErrInvalidParameter))
			Expect(net.GetParams()).To(HaveKeyWithValue("m04_FR_k", 0.1))

			Expect(net.SetParameters(map[string]float64{"FR_k": 0.2})).To(MatchError(dynamo.ErrInvalidParameter))
			Expect(net.SetParameters(map[string]float64{"m04_junction_x": 1})).To(MatchError(dynamo.ErrInvalidParameter))
		})

		It("should restore updated nodes when a later node rejects its value", func() {
			net := splitRouting(1)
			before := net.GetParams()
			err := net.SetParameters(map[string]float64{
				"m04_UR_Smax":         300,
				"m04_split_split-par": 0.5,
				"m04_FR_k":            -1,
			})
			Expect(err).To(MatchError(dynamo.ErrInvalidParameter))
			Expect(net.GetParams()).To(Equal(before))
		})

		It("should expose elements for internal calls", func() {
			net := splitRouting(1)
			Expect(net.SetInputs([]dynamo.Series{p, pet})).To(Succeed())
			_, err := net.Outputs()
			Expect(err).NotTo(HaveOccurred())

			el, err := net.Element("UR")
			Expect(err).NotTo(HaveOccurred())
			aet, err := el.(dynamo.Evapotranspirer).AET()
			Expect(err).NotTo(HaveOccurred())
			Expect(aet).To(HaveLen(len(p)))
			total, err := net.AET()
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(Equal(aet))
			Expect(net.Diagnostics()).To(HaveKey("UR"))

			_, err = net.Element("nope")
			Expect(err).To(MatchError(dynamo.ErrUnknownNode))
		})
	})
})
