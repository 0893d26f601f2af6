package core

import "escrowcore/pkg/domain"

// NewDefaultRulesEngine builds a rules engine with the built-in invariant set.
// Every escrow transaction is checked against fund conservation, status
// machine legality, and registry counter consistency before it may commit.
func NewDefaultRulesEngine() *domain.RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(NewFundConservationRule())
	engine.Register(NewStatusTransitionRule())
	engine.Register(NewRegistryCountersRule())
	return engine
}
