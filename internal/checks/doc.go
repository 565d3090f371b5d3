// Package checks holds the pure admission checks of the redemption engine:
// the multi-entry policy and the answer completeness check.
package checks
