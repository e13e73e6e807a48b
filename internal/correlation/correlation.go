package correlation

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const prefix = "ratemymr"

// shortLen is the length of the human-facing suffix used in log filters.
const shortLen = 8

// ID identifies one pipeline run end to end. It is generated once at run
// start (or handed in by the dispatcher) and threaded through every log
// statement and outbound call.
type ID string

// New generates a run identifier with a time component and a random
// component, e.g. "ratemymr_1755860521_3f1c9aa04b2d".
func New() ID {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")
	return ID(fmt.Sprintf("%s_%d_%s", prefix, time.Now().Unix(), random[:12]))
}

// FromString reuses an identifier handed in by the dispatcher, generating a
// fresh one when the input is empty.
func FromString(s string) ID {
	if strings.TrimSpace(s) == "" {
		return New()
	}
	return ID(s)
}

func (id ID) String() string {
	return string(id)
}

// Short returns the fixed-length suffix of the identifier's last segment,
// used for human-facing log filtering.
func (id ID) Short() string {
	parts := strings.Split(string(id), "_")
	last := parts[len(parts)-1]
	if len(last) > shortLen {
		return last[:shortLen]
	}
	return last
}
