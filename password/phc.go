package password

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const algorithmID = "argon2id"

var errInvalidPHC = errors.New("invalid PHC format")

type phcHash struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func (p phcHash) String() string {
	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		p.memory,
		p.time,
		p.parallelism,
		base64.RawStdEncoding.EncodeToString(p.salt),
		base64.RawStdEncoding.EncodeToString(p.key),
	)
}

func decodeSegment(s string) ([]byte, error) {
	// Accept both padded and unpadded standard base64; PHC strings in the wild use both.
	if strings.HasSuffix(s, "=") {
		return base64.StdEncoding.DecodeString(s)
	}
	return base64.RawStdEncoding.DecodeString(s)
}

func parsePHC(encoded string) (phcHash, error) {
	var out phcHash

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return out, errInvalidPHC
	}
	if parts[1] != algorithmID {
		return out, fmt.Errorf("%w: unsupported algorithm %q", errInvalidPHC, parts[1])
	}

	version, err := strconv.Atoi(strings.TrimPrefix(parts[2], "v="))
	if err != nil || !strings.HasPrefix(parts[2], "v=") {
		return out, fmt.Errorf("%w: bad version", errInvalidPHC)
	}
	if version != argon2.Version {
		return out, fmt.Errorf("%w: unsupported version %d", errInvalidPHC, version)
	}

	if err := parseParams(parts[3], &out); err != nil {
		return out, err
	}

	out.salt, err = decodeSegment(parts[4])
	if err != nil || len(out.salt) < int(minSaltLength) {
		return out, fmt.Errorf("%w: bad salt", errInvalidPHC)
	}
	out.key, err = decodeSegment(parts[5])
	if err != nil || len(out.key) < int(minKeyLength) {
		return out, fmt.Errorf("%w: bad key", errInvalidPHC)
	}

	return out, nil
}

func parseParams(part string, out *phcHash) error {
	var seen uint8

	for _, pair := range strings.Split(part, ",") {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("%w: bad parameter %q", errInvalidPHC, pair)
		}

		switch name {
		case "m":
			v, err := strconv.ParseUint(value, 10, 32)
			if err != nil || uint32(v) < minMemoryKB {
				return fmt.Errorf("%w: bad memory", errInvalidPHC)
			}
			out.memory = uint32(v)
			seen |= 1
		case "t":
			v, err := strconv.ParseUint(value, 10, 32)
			if err != nil || v < 1 {
				return fmt.Errorf("%w: bad time", errInvalidPHC)
			}
			out.time = uint32(v)
			seen |= 2
		case "p":
			v, err := strconv.ParseUint(value, 10, 8)
			if err != nil || v < 1 {
				return fmt.Errorf("%w: bad parallelism", errInvalidPHC)
			}
			out.parallelism = uint8(v)
			seen |= 4
		default:
			return fmt.Errorf("%w: unknown parameter %q", errInvalidPHC, name)
		}
	}

	if seen != 7 {
		return fmt.Errorf("%w: missing parameters", errInvalidPHC)
	}
	return nil
}
