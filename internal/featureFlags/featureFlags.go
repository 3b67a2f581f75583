// Package featureFlags decides when legacy call-based handlers must yield to
// their event-based equivalents. Vaults above the cutoff emit events that
// cover the same state change, so running the call handler too would
// double-count balances.
package featureFlags

import (
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// VaultVersionCutoff is the last API version whose deposit/withdraw calls are
// still authoritative. Strictly greater versions are event-only.
const VaultVersionCutoff = "0.4.3"

// VersionGreaterThan compares two dotted major.minor.patch strings component
// by component. A malformed candidate is logged and treated as not greater,
// which keeps the legacy handlers running. That fallback is deliberate: an
// unparseable version tells us nothing, and processing a call twice is worse
// than processing it the old way.
func VersionGreaterThan(candidate string, threshold string, l *zap.Logger) bool {
	cParts, err := parseVersion(candidate)
	if err != nil {
		l.Sugar().Errorw("Failed to parse candidate api version",
			zap.String("version", candidate),
			zap.Error(err),
		)
		return false
	}
	tParts, err := parseVersion(threshold)
	if err != nil {
		l.Sugar().Errorw("Failed to parse threshold api version",
			zap.String("version", threshold),
			zap.Error(err),
		)
		return false
	}

	for i := 0; i < 3; i++ {
		if cParts[i] > tParts[i] {
			return true
		}
		if cParts[i] < tParts[i] {
			return false
		}
	}
	return false
}

// DepositCallsSuperseded reports whether a vault's legacy deposit call
// handlers should be skipped for the given API version.
func DepositCallsSuperseded(apiVersion string, l *zap.Logger) bool {
	return VersionGreaterThan(apiVersion, VaultVersionCutoff, l)
}

// WithdrawCallsSuperseded mirrors DepositCallsSuperseded for withdraw calls.
func WithdrawCallsSuperseded(apiVersion string, l *zap.Logger) bool {
	return VersionGreaterThan(apiVersion, VaultVersionCutoff, l)
}

type versionParseError struct {
	raw string
}

func (e *versionParseError) Error() string {
	return "version is not three dotted numeric components: '" + e.raw + "'"
}

func parseVersion(v string) ([3]uint64, error) {
	var parsed [3]uint64
	parts := strings.Split(strings.TrimSpace(v), ".")
	if len(parts) != 3 {
		return parsed, &versionParseError{raw: v}
	}
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return parsed, &versionParseError{raw: v}
		}
		parsed[i] = n
	}
	return parsed, nil
}
