package alias

import (
	"encoding/hex"
	"sort"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// SchemeUUID is the built-in generation scheme. Every build ships it.
const SchemeUUID = "UUID"

// ErrUnknownScheme is returned by Generate when no scheme with the
// requested tag has been registered.
var ErrUnknownScheme = errors.New("unknown generation scheme")

// GenerateFunc produces one public alias. Implementations must return
// a value that carries no information about the original.
type GenerateFunc func() (string, error)

var (
	schemesMu sync.RWMutex
	schemes   = map[string]GenerateFunc{
		SchemeUUID: generateUUID,
	}
)

// RegisterScheme makes a generation scheme available under the given
// tag. Registering an already-taken tag is an error so that schemes
// cannot silently shadow each other.
func RegisterScheme(tag string, fn GenerateFunc) error {
	if strings.TrimSpace(tag) == "" {
		return errors.New("scheme tag must not be empty")
	}
	if fn == nil {
		return errors.New("scheme function must not be nil")
	}

	schemesMu.Lock()
	defer schemesMu.Unlock()
	if _, ok := schemes[tag]; ok {
		return errors.Newf("scheme %q already registered", tag)
	}
	schemes[tag] = fn
	return nil
}

// Generate produces a public alias using the named scheme.
func Generate(scheme string) (string, error) {
	schemesMu.RLock()
	fn, ok := schemes[scheme]
	schemesMu.RUnlock()
	if !ok {
		return "", errors.Wrapf(ErrUnknownScheme, "%q", scheme)
	}

	out, err := fn()
	if err != nil {
		return "", errors.Wrapf(err, "scheme %q", scheme)
	}
	if out == "" {
		return "", errors.Newf("scheme %q produced an empty alias", scheme)
	}
	return out, nil
}

// Schemes lists the registered scheme tags in sorted order.
func Schemes() []string {
	schemesMu.RLock()
	defer schemesMu.RUnlock()

	tags := make([]string, 0, len(schemes))
	for tag := range schemes {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

func generateUUID() (string, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", errors.Wrap(err, "generate uuid")
	}
	return "tok_" + hex.EncodeToString(u[:]), nil
}
