package selection

import (
	"context"
	"fmt"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"
)

// poolFromWorkloads builds a pool with IDs c0..cN in input order.
func poolFromWorkloads(workloads []int) []Candidate {
	pool := make([]Candidate, len(workloads))
	for i, w := range workloads {
		pool[i] = Candidate{ID: fmt.Sprintf("c%d", i), Workload: w}
	}
	return pool
}

func TestProperty_UnconstrainedPicksMinimumWorkload(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("winner has minimum workload and is the earliest such candidate", prop.ForAll(
		func(workloads []int) bool {
			pool := poolFromWorkloads(workloads)
			res := NewEngine(DefaultRules(), nil, zerolog.Nop()).
				Select(context.Background(), Request{Pool: pool}, nil)
			if !res.OK() || res.Method != MethodWorkloadBalanced {
				return false
			}
			for _, c := range pool {
				if c.Workload < res.Selected.Workload {
					return false
				}
				if c.Workload == res.Selected.Workload {
					return c.ID == res.Selected.ID
				}
			}
			return false
		},
		gen.SliceOfN(12, gen.IntRange(0, 20)).SuchThat(func(v []int) bool { return len(v) > 0 }),
	))

	properties.TestingRun(t)
}

func TestProperty_RequestedAvailableApproverAlwaysWins(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("method is REQUESTED and winner comes from the requested set", prop.ForAll(
		func(workloads []int, pick int) bool {
			pool := poolFromWorkloads(workloads)
			requested := []string{pool[pick%len(pool)].ID, "not-in-pool"}
			res := NewEngine(DefaultRules(), nil, zerolog.Nop()).
				Select(context.Background(), Request{Pool: pool, Requested: requested}, nil)
			return res.Method == MethodRequested && res.Selected.ID == requested[0]
		},
		gen.SliceOfN(8, gen.IntRange(0, 50)).SuchThat(func(v []int) bool { return len(v) > 0 }),
		gen.IntRange(0, 1000),
	))

	properties.TestingRun(t)
}

func TestProperty_LimitsNeverCauseFailure(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("a non-empty pool always yields a selection", prop.ForAll(
		func(workloads []int, limit int64, amount int64) bool {
			pool := poolFromWorkloads(workloads)
			constraints := Constraints{}
			for _, c := range pool {
				l := Money(limit)
				constraints[ConstraintKey{ApproverID: c.ID, Level: 1}] = Constraint{
					Available: true, AutoAssign: true, ApprovalLimit: &l,
				}
			}
			sink := &memorySink{}
			res := NewEngine(DefaultRules(), sink, zerolog.Nop()).
				Select(context.Background(), Request{Pool: pool, Amount: Money(amount), Level: 1}, constraints)
			return res.OK() && sink.count() == 1
		},
		gen.SliceOfN(6, gen.IntRange(0, 10)).SuchThat(func(v []int) bool { return len(v) > 0 }),
		gen.Int64Range(0, 1_000_000),
		gen.Int64Range(0, 2_000_000),
	))

	properties.TestingRun(t)
}

func TestProperty_Deterministic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("identical snapshots give identical results", prop.ForAll(
		func(workloads []int, priorities []int, amount int64, level int) bool {
			pool := poolFromWorkloads(workloads)
			constraints := Constraints{}
			for i, c := range pool {
				if i < len(priorities) {
					constraints[ConstraintKey{ApproverID: c.ID, Level: Level(level)}] = Constraint{
						Available: priorities[i]%5 != 0, AutoAssign: true, Priority: priorities[i],
					}
				}
			}
			req := EscalationRequest{
				Request:     Request{Pool: pool, Amount: Money(amount), Level: Level(level)},
				TopTierPool: []Candidate{{ID: "top", Workload: 1}},
			}
			engine := NewEngine(DefaultRules(), nil, zerolog.Nop())
			first := engine.SelectWithEscalation(context.Background(), req, constraints)
			second := engine.SelectWithEscalation(context.Background(), req, constraints)
			return reflect.DeepEqual(first, second)
		},
		gen.SliceOfN(6, gen.IntRange(0, 10)).SuchThat(func(v []int) bool { return len(v) > 0 }),
		gen.SliceOfN(6, gen.IntRange(0, 10)),
		gen.Int64Range(0, 1_000_000),
		gen.IntRange(0, 3),
	))

	properties.TestingRun(t)
}

func TestProperty_AuditCountMatchesSuccesses(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("one audit record per successful selection, none for empty pools", prop.ForAll(
		func(sizes []int) bool {
			sink := &memorySink{}
			engine := NewEngine(DefaultRules(), sink, zerolog.Nop())
			successes := 0
			for _, n := range sizes {
				res := engine.Select(context.Background(), Request{Pool: poolFromWorkloads(make([]int, n))}, nil)
				if res.OK() {
					successes++
				}
			}
			return sink.count() == successes
		},
		gen.SliceOf(gen.IntRange(0, 3)),
	))

	properties.TestingRun(t)
}
