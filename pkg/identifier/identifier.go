package identifier

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/Server-perf/watchman/pkg/encoding"
	"github.com/Server-perf/watchman/pkg/random"
)

const (
	// PrefixRoot is the prefix used for watched-root session identifiers.
	PrefixRoot = "root_"

	// requiredPrefixLength is the required length for identifier prefixes,
	// including the trailing underscore.
	requiredPrefixLength = 5

	// collisionResistantLength mirrors random.CollisionResistantLength and is
	// duplicated here (rather than referenced directly) so that
	// targetBase62Length can be computed as a constant.
	collisionResistantLength = 32

	// targetBase62Length is the expected length of a collisionResistantLength
	// byte value once Base62-encoded and left-padded.
	targetBase62Length = 43
)

// New generates a new collision-resistant identifier with the specified
// prefix. The prefix must have length requiredPrefixLength and consist
// entirely of lowercase ASCII letters followed by an underscore.
func New(prefix string) (string, error) {
	if !isValidPrefix(prefix) {
		return "", errors.New("invalid identifier prefix")
	}

	// Create the random value.
	value, err := random.New(random.CollisionResistantLength)
	if err != nil {
		return "", err
	}

	// Encode the random value, left-padding to the target length so that
	// identifiers derived from the same prefix always have the same length.
	encoded := encoding.EncodeBase62(value)
	if pad := targetBase62Length - len(encoded); pad > 0 {
		encoded = strings.Repeat(string(encoding.Base62Alphabet[0]), pad) + encoded
	}

	return prefix + encoded, nil
}

// IsValid returns whether or not value is a syntactically valid identifier,
// either one generated by New or a lowercase UUID.
func IsValid(value string) bool {
	if len(value) == requiredPrefixLength+targetBase62Length {
		prefix := value[:requiredPrefixLength]
		if !isValidPrefix(prefix) {
			return false
		}
		_, err := encoding.DecodeBase62(value[requiredPrefixLength:])
		return err == nil
	}
	return isLowercaseUUID(value)
}

func isValidPrefix(prefix string) bool {
	if len(prefix) != requiredPrefixLength {
		return false
	}
	if prefix[requiredPrefixLength-1] != '_' {
		return false
	}
	for i := 0; i < requiredPrefixLength-1; i++ {
		c := prefix[i]
		if c < 'a' || c > 'z' {
			return false
		}
	}
	return true
}

func isLowercaseUUID(value string) bool {
	if len(value) != 36 {
		return false
	}
	for i, c := range value {
		if i == 8 || i == 13 || i == 18 || i == 23 {
			if c != '-' {
				return false
			}
			continue
		}
		if !(c >= '0' && c <= '9') && !(c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}

