package specdoc

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	phaseInfoRe = regexp.MustCompile(`(?i)Phase\s+(\d+-\d+)\s+(.+?)\.pdf`)
	phaseCodeRe = regexp.MustCompile(`Phase\s+(\d+-\d+)`)
	phaseSortRe = regexp.MustCompile(`Phase\s+(\d+)-(\d+)`)
)

// unsortedKey places files without a phase number after every numbered file.
const unsortedKey = 999

// ParsePhaseInfo extracts the phase code and name from a file name such as
// "Phase 30-500 ALARM SYSTEM.pdf". When the name does not follow that pattern
// ok is false and name is the file name without its ".pdf" extension.
func ParsePhaseInfo(fileName string) (code, name string, ok bool) {
	m := phaseInfoRe.FindStringSubmatch(fileName)
	if m == nil {
		return "", strings.ReplaceAll(fileName, ".pdf", ""), false
	}
	return m[1], strings.TrimSpace(m[2]), true
}

// DescribeFile returns the phase code found anywhere in a file name (empty
// if none) and a human description: the text after the code, or the whole
// name without ".pdf".
func DescribeFile(fileName string) (code, description string) {
	if m := phaseCodeRe.FindStringSubmatch(fileName); m != nil {
		code = m[1]
	}
	_, description, _ = ParsePhaseInfo(fileName)
	return code, description
}

// PhaseSortKey returns the numeric parts of the phase code in a file name.
// Files without one sort last with (999, 999).
func PhaseSortKey(fileName string) (major, minor int) {
	m := phaseSortRe.FindStringSubmatch(fileName)
	if m == nil {
		return unsortedKey, unsortedKey
	}
	major, err1 := strconv.Atoi(m[1])
	minor, err2 := strconv.Atoi(m[2])
	if err1 != nil || err2 != nil {
		return unsortedKey, unsortedKey
	}
	return major, minor
}

// ComparePhaseFiles orders two file names by PhaseSortKey.
func ComparePhaseFiles(a, b string) int {
	amaj, amin := PhaseSortKey(a)
	bmaj, bmin := PhaseSortKey(b)
	if amaj != bmaj {
		return amaj - bmaj
	}
	return amin - bmin
}
