package goGuard

import (
	"strings"

	"github.com/MrEthical07/goGuard/internal"
)

const backupCodeDigits = 8

// generateBackupCodes returns n codes in display form (NNNN-NNNN).
func generateBackupCodes(n int) ([]string, error) {
	codes := make([]string, 0, n)
	seen := make(map[string]struct{}, n)
	for len(codes) < n {
		raw, err := internal.RandomDigits(backupCodeDigits)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[raw]; dup {
			continue
		}
		seen[raw] = struct{}{}
		codes = append(codes, formatBackupCode(raw))
	}
	return codes, nil
}

func formatBackupCode(canonical string) string {
	if len(canonical) != backupCodeDigits {
		return canonical
	}
	return canonical[:4] + "-" + canonical[4:]
}

// canonicalBackupCode strips separators and spaces. It returns false when
// what remains is not exactly eight digits.
func canonicalBackupCode(input string) (string, bool) {
	var b strings.Builder
	for _, r := range input {
		switch {
		case r == '-' || r == ' ' || r == '\t':
			continue
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			return "", false
		}
	}
	out := b.String()
	if len(out) != backupCodeDigits {
		return "", false
	}
	return out, true
}
