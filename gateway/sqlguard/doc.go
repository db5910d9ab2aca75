// Package sqlguard enforces a read-only access policy on SQL statements
// before they reach a connector.
//
// The package classifies statements statically (no database round trip, no
// full SQL parse) with three independent detectors:
//   - mutating keyword detection: DDL, DML, permission and server-level
//     statements (CREATE, INSERT, GRANT, SET GLOBAL, ...)
//   - injection risk signatures: tautologies, stacked statements, UNION
//     probes, comment termination, time-delay probes
//   - transaction bypass detection: COMMIT/ROLLBACK/BEGIN used to smuggle
//     writes past a read-only transaction wrapper
//
// # Usage
//
// Evaluate a statement directly with a guard:
//
//	guard := sqlguard.NewGuard()
//	decision := guard.Evaluate(sql)
//	if !decision.Allowed {
//	    log.Printf("rejected: %s", strings.Join(decision.Reasons, "; "))
//	}
//
// Or use the enforcer, which adds modes, per-connector overrides, counters
// and audit emission:
//
//	enforcer, err := sqlguard.NewEnforcer()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	decision, err := enforcer.CheckStatement(ctx, "postgres", clientID, sql)
//	if err != nil {
//	    // Enforce mode rejected the statement; err is a *PolicyViolationError.
//	}
//
// # Configuration
//
// Enforcement has three modes: off (guard not consulted), log (violations
// recorded and allowed through) and enforce (violations rejected). Modes and
// the multi-statement batch policy come from the environment or config file:
//
//	config := sqlguard.ConfigFromEnv().
//	    WithMode(sqlguard.ModeEnforce).
//	    WithStackingPolicy(sqlguard.StackingReject)
//
// # Detection Bias
//
// The classifier prefers recall over precision: a quoted keyword inside a
// string literal still counts as mutating, and any literal = literal
// comparison after OR counts as a tautology. False positives on unusual
// read queries are accepted; false negatives on writes are not.
package sqlguard
