// Package meta selects which LLM model backs a turn of the agent loop.
//
// The runtime's cost-discipline contract (spec §4.5) is simple: the root
// task (depth 0) runs against the configured "root" model, every
// recursive_llm call beneath it runs against a cheaper "sub" model. This
// package carries the teacher's model-tier catalog shape to make that
// choice and describe it in a transcript event, trimmed from the
// teacher's broader decomposition/memory-query/synthesize orchestration
// decision engine, which answers a different question (how to break up
// a task) than the one this runtime needs (which model answers this
// turn).
//
// # Model Tiers
//
//   - TierRoot: the expensive model used at depth 0.
//   - TierSub: the cheaper model used at every recursive depth.
package meta
