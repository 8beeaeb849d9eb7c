package scope

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/invoice-ledger/internal/domain/entity"
)

const defaultPadWidth = 4

var seriesPattern = regexp.MustCompile(`^[A-Z0-9]{1,8}$`)

// Scope is the key within which invoice numbers are unique, plus the number format
type Scope struct {
	// Key is "company:<uuid>" or "owner:<uuid>"
	Key string

	// Prefix is the series prefix, e.g. "2025" or "2025-ACME"
	Prefix string

	// PadWidth is the minimum number of digits in the sequence suffix
	PadWidth int

	OwnerID   uuid.UUID
	CompanyID *uuid.UUID
}

// Format renders the invoice number for the given sequence value
func (s Scope) Format(seq int64) string {
	return fmt.Sprintf("%s-%0*d", s.Prefix, s.PadWidth, seq)
}

// Config configures the resolver
type Config struct {
	PadWidth         int
	AdminRole        string
	RoleCapabilities map[string][]string
}

// Resolver derives actors and allocation scopes. It reads configuration and the clock only.
type Resolver struct {
	padWidth  int
	adminRole string
	roleCaps  map[string]map[Capability]bool
	now       func() time.Time
}

// NewResolver creates a resolver from configuration
func NewResolver(cfg Config) *Resolver {
	pad := cfg.PadWidth
	if pad <= 0 {
		pad = defaultPadWidth
	}

	roleCaps := make(map[string]map[Capability]bool, len(cfg.RoleCapabilities))
	for role, caps := range cfg.RoleCapabilities {
		set := make(map[Capability]bool, len(caps))
		for _, c := range caps {
			set[Capability(strings.ToLower(strings.TrimSpace(c)))] = true
		}
		roleCaps[strings.ToLower(role)] = set
	}

	return &Resolver{
		padWidth:  pad,
		adminRole: strings.ToLower(cfg.AdminRole),
		roleCaps:  roleCaps,
		now:       time.Now,
	}
}

// WithClock replaces the clock used for the default reference date
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.now = now
	return r
}

// NewActor builds an actor and resolves its capabilities from its roles
func (r *Resolver) NewActor(userID uuid.UUID, companies []uuid.UUID, roles []string) *Actor {
	a := &Actor{
		UserID:    userID,
		Companies: companies,
		Roles:     roles,
		caps:      make(map[Capability]bool),
	}

	for _, role := range roles {
		role = strings.ToLower(role)
		if r.adminRole != "" && role == r.adminRole {
			a.admin = true
		}
		for c := range r.roleCaps[role] {
			a.caps[c] = true
		}
	}

	return a
}

// Resolve computes the allocation scope for a new invoice.
// A zero ref uses the resolver clock; series is optional.
func (r *Resolver) Resolve(actor *Actor, companyID *uuid.UUID, ref time.Time, series string) (Scope, error) {
	if actor == nil || actor.UserID == uuid.Nil {
		return Scope{}, fmt.Errorf("%w: no owner identity", entity.ErrInvalidScope)
	}

	if ref.IsZero() {
		ref = r.now()
	}

	s := Scope{
		PadWidth: r.padWidth,
		OwnerID:  actor.UserID,
		Prefix:   fmt.Sprintf("%04d", ref.Year()),
	}

	if series != "" {
		code := strings.ToUpper(strings.TrimSpace(series))
		if !seriesPattern.MatchString(code) {
			return Scope{}, fmt.Errorf("%w: series code %q", entity.ErrInvalidScope, series)
		}
		s.Prefix += "-" + code
	}

	key, err := r.Key(actor, companyID)
	if err != nil {
		return Scope{}, err
	}
	s.Key = key
	if companyID != nil {
		id := *companyID
		s.CompanyID = &id
	}

	return s, nil
}

// Key computes the scope key used for listings. It applies the same membership rules as Resolve.
func (r *Resolver) Key(actor *Actor, companyID *uuid.UUID) (string, error) {
	if actor == nil || actor.UserID == uuid.Nil {
		return "", fmt.Errorf("%w: no owner identity", entity.ErrInvalidScope)
	}

	if companyID == nil {
		return OwnerKey(actor.UserID), nil
	}
	if *companyID == uuid.Nil {
		return "", fmt.Errorf("%w: empty company id", entity.ErrInvalidScope)
	}
	if !actor.MemberOf(*companyID) {
		return "", fmt.Errorf("%w: actor %s is not a member of company %s", entity.ErrInvalidScope, actor.UserID, companyID)
	}
	return CompanyKey(*companyID), nil
}

// OwnerKey returns the scope key of a personal invoice series
func OwnerKey(ownerID uuid.UUID) string {
	return "owner:" + ownerID.String()
}

// CompanyKey returns the scope key of a company invoice series
func CompanyKey(companyID uuid.UUID) string {
	return "company:" + companyID.String()
}

// SeriesSuffix parses the numeric suffix of number in the series of prefix.
// ok is false when number does not have the form <prefix>-<digits>.
func SeriesSuffix(number, prefix string) (n int64, ok bool) {
	digits, found := strings.CutPrefix(number, prefix+"-")
	if !found || digits == "" {
		return 0, false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
