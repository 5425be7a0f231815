package convert

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sensiblebit/jksconvert/internal/packager"
)

// Direction selects one of the two pipelines.
type Direction string

const (
	// ContainerToPem converts a keystore into a private key and certificate.
	ContainerToPem Direction = "jks-to-pem"
	// PemToContainer converts a certificate and private key into a keystore.
	PemToContainer Direction = "pem-to-jks"
)

// ParseDirection accepts the canonical names and the underscore spellings
// used by the original form fields.
func ParseDirection(s string) (Direction, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-") {
	case string(ContainerToPem):
		return ContainerToPem, nil
	case string(PemToContainer):
		return PemToContainer, nil
	case "":
		return "", inputError("conversion type is required")
	default:
		return "", inputError(fmt.Sprintf("unknown conversion type %q", s))
	}
}

// Role names an input payload.
type Role string

// Input roles.
const (
	RoleKeystore    Role = "keystore"
	RoleCertificate Role = "certificate"
	RoleKey         Role = "key"
)

// requiredRoles lists the inputs each direction needs, in artifact order.
var requiredRoles = map[Direction][]Role{
	ContainerToPem: {RoleKeystore},
	PemToContainer: {RoleCertificate, RoleKey},
}

var aliasPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// Request is one conversion.
type Request struct {
	// ID correlates log lines; it is never interpreted.
	ID        string
	Direction Direction
	Alias     string
	// SourcePassword opens the input keystore (ContainerToPem) or protects
	// the intermediate container (PemToContainer).
	SourcePassword string
	// DestPassword protects the output keystore (PemToContainer) or the
	// intermediate container (ContainerToPem). Empty means SourcePassword.
	DestPassword string
	Inputs       map[Role][]byte
	// Format selects the bundle format for ContainerToPem. Empty means zip.
	Format packager.Format
}

// Defaults fill fields a request leaves empty.
type Defaults struct {
	Password string
	Alias    string
}

// normalize applies defaults and checks the request shape. It returns a
// copy; the caller's request is not modified.
func (r Request) normalize(d Defaults) (Request, error) {
	roles, ok := requiredRoles[r.Direction]
	if !ok {
		return r, inputError(fmt.Sprintf("unknown conversion type %q", r.Direction))
	}
	for _, role := range roles {
		if len(r.Inputs[role]) == 0 {
			return r, inputError(fmt.Sprintf("missing %s file", role))
		}
	}

	r.Alias = strings.TrimSpace(r.Alias)
	if r.Alias == "" {
		r.Alias = d.Alias
	}
	if !aliasPattern.MatchString(r.Alias) {
		return r, inputError("alias must be 1-64 letters, digits, dots, underscores, or hyphens")
	}

	if r.SourcePassword == "" {
		r.SourcePassword = d.Password
	}
	if r.DestPassword == "" {
		r.DestPassword = r.SourcePassword
	}

	if r.Direction == ContainerToPem {
		f, err := packager.ParseFormat(string(r.Format))
		if err != nil {
			return r, inputError(err.Error())
		}
		r.Format = f
	}
	return r, nil
}
