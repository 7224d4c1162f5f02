// Package pipeline orchestrates bundle processing.
//
// A request flows through these steps:
//
//  1. Assemble the processing context from request parameters.
//  2. Resolve the transport strategy and scoring endpoint. Failures here are
//     configuration errors and nothing is recorded.
//  3. Record the original payload (NONE -> ACCEPT_BUNDLE).
//  4. Run the structural precheck and the configured validator, then record
//     the outcome (ACCEPT_BUNDLE -> DISPOSITION).
//  5. Return early for validation-only requests, health checks, and
//     outcomes carrying a discard directive.
//  6. Merge the filtered outcome into the bundle and hand it to the delivery
//     executor, which records FORWARD and then COMPLETE or FAIL.
//
// Health checks run validation but leave no state records.
//
// # Response
//
// Callers receive the outcome document:
//
//	{
//	  "OperationOutcome": {
//	    "resourceType": "OperationOutcome",
//	    "bundleSessionId": "<interaction id>",
//	    "validationResults": [{"valid": true, "operationOutcome": {"issue": []}}],
//	    "techByDesignDisposition": [{"action": "discard"}]   // when enriched
//	  }
//	}
//
// When the state sink enriched the recorded outcome, the enriched document
// is returned instead of the validator's.
package pipeline
