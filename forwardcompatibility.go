package transactions

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// The format version is written into every stored transaction document as
// "major.minor". Minor bumps only add optional fields, a newer major cannot
// be read.
const (
	formatMajor = 1
	formatMinor = 0
)

var currentFormatVersion = fmt.Sprintf("%d.%d", formatMajor, formatMinor)

func parseFormatVersion(version string) (int, int, error) {
	parts := strings.Split(version, ".")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid format version: %s", version)
	}

	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, err
	}
	minor, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, err
	}

	return major, minor, nil
}

// checkFormatVersion fails with ErrForwardCompatibilityFailure for documents
// written by a newer major format. Documents without a version are read as
// the current format.
func checkFormatVersion(version string) error {
	if version == "" {
		return nil
	}

	major, _, err := parseFormatVersion(version)
	if err != nil {
		return err
	}

	if major > formatMajor {
		return errors.Wrapf(ErrForwardCompatibilityFailure,
			"document format %s is newer than %s", version, currentFormatVersion)
	}

	return nil
}
