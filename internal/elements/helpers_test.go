package elements

import (
	"github.com/san-kum/hydrosim/internal/dynamo"
	"github.com/san-kum/hydrosim/internal/integrators"
	"github.com/san-kum/hydrosim/internal/rootfind"
)

func implicitEuler(cfg dynamo.SolverConfig) *integrators.ImplicitEuler {
	return integrators.NewImplicitEuler(rootfind.NewPegasus(cfg), integrators.WithStrict(cfg.Strict))
}

func defaultApprox() *integrators.ImplicitEuler {
	return implicitEuler(dynamo.DefaultSolverConfig())
}

func referenceParams() PowerReservoirETParams {
	return PowerReservoirETParams{K: 0.1, Alpha: 1, Ce: 1, M: 5}
}
