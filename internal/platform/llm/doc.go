// Package llm wraps the Gemini API behind the narrow call surface the
// batch engine needs: a prompt in, a completion out, and failures
// classified so the scheduler can tell throttling from other remote
// errors. The engine itself never depends on this package's semantics;
// it only invokes the calls it produces.
package llm
