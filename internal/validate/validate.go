// Package validate turns a raw submission payload into a normalized model.Record.
//
// Validation is a pure transformation: it never touches a store. Identifiers are
// a fixed prefix plus five random alphanumeric characters drawn from an injected
// source, so tests can reproduce them with a fixed seed. Generated identifiers are
// not checked for uniqueness against the document store.
package validate

import (
	"encoding/json"
	"errors"
	"math/rand/v2"
	"net/mail"
	"regexp"
	"strings"
	"sync"
	"time"

	"recordapi/internal/model"
)

const (
	DefaultIDPrefix = "iemap"
	idSuffixLen     = 5
	idAlphabet      = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	maxIDLen        = 64
)

// Accepted layouts for the optional "date" field, tried in order.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

var idPrefixPattern = regexp.MustCompile(`^[a-z0-9]+$`)

// Caller-supplied ids become part of the stored filename, so they are kept to a
// filename-safe alphabet.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Validator validates submissions and fills in generated fields.
// It is safe for concurrent use.
type Validator struct {
	prefix string
	now    func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// Option configures a Validator.
type Option func(*Validator)

// WithSeed makes identifier generation deterministic.
func WithSeed(seed uint64) Option {
	return func(v *Validator) {
		v.rng = rand.New(rand.NewPCG(seed, seed))
	}
}

// WithClock overrides the source of the default creation time.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		v.now = now
	}
}

// WithIDPrefix overrides the identifier prefix. Prefixes that are not lowercase
// alphanumeric are ignored.
func WithIDPrefix(prefix string) Option {
	return func(v *Validator) {
		if ValidIDPrefix(prefix) {
			v.prefix = prefix
		}
	}
}

// ValidIDPrefix reports whether prefix is non-empty lowercase alphanumeric.
func ValidIDPrefix(prefix string) bool {
	return idPrefixPattern.MatchString(prefix)
}

// New creates a Validator. Without WithSeed the generator is seeded randomly.
func New(opts ...Option) *Validator {
	v := &Validator{
		prefix: DefaultIDPrefix,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.rng == nil {
		v.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return v
}

// Validate parses raw and returns the normalized record, or a *RejectedError
// listing every field problem found.
func (v *Validator) Validate(raw []byte) (*model.Record, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, &RejectedError{Errors: []FieldError{{Field: "body", Message: "invalid JSON: " + err.Error()}}}
	}

	var errs []FieldError
	str := func(name string) (*string, bool) {
		val, fe := stringField(fields, name)
		if fe != nil {
			errs = append(errs, *fe)
			return nil, false
		}
		return val, true
	}

	rec := &model.Record{AttachedFiles: []string{}}

	if email, ok := str("user_email"); ok {
		if email == nil {
			errs = append(errs, FieldError{Field: "user_email", Message: "field required"})
		} else {
			normalized, valid := normalizeEmail(*email)
			if !valid {
				errs = append(errs, FieldError{Field: "user_email", Message: "value is not a valid email address"})
			}
			rec.OwnerEmail = normalized
		}
	}

	if inst, ok := str("institution"); ok {
		if inst == nil {
			errs = append(errs, FieldError{Field: "institution", Message: "field required"})
		} else {
			rec.Institution = strings.TrimSpace(*inst)
		}
	}

	if id, _ := str("id"); id != nil && *id != "" {
		trimmed := strings.TrimSpace(*id)
		if len(trimmed) > maxIDLen || !idPattern.MatchString(trimmed) {
			errs = append(errs, FieldError{Field: "id", Message: "id may only contain letters, digits, '-' and '_' (max 64 characters)"})
		}
		rec.ID = trimmed
	}

	if date, _ := str("date"); date != nil && *date != "" {
		t, ok := parseDate(*date)
		if !ok {
			errs = append(errs, FieldError{Field: "date", Message: "value is not a valid datetime"})
		}
		rec.CreatedAt = t
	}

	if len(errs) > 0 {
		return nil, &RejectedError{Errors: errs}
	}

	if rec.ID == "" {
		rec.ID = v.NewID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = v.now()
	}
	return rec, nil
}

// NewID returns the prefix followed by five random alphanumeric characters.
func (v *Validator) NewID() string {
	v.mu.Lock()
	defer v.mu.Unlock()

	var b strings.Builder
	b.Grow(len(v.prefix) + idSuffixLen)
	b.WriteString(v.prefix)
	for range idSuffixLen {
		b.WriteByte(idAlphabet[v.rng.IntN(len(idAlphabet))])
	}
	return b.String()
}

func normalizeEmail(s string) (string, bool) {
	s = strings.TrimSpace(s)
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return s, false
	}
	at := strings.LastIndexByte(s, '@')
	local, domain := s[:at], strings.ToLower(s[at+1:])
	if local == "" || !strings.Contains(domain, ".") ||
		strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return s, false
	}
	return local + "@" + domain, true
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// stringField decodes fields[name] as a string. Absent and null both yield nil.
func stringField(fields map[string]json.RawMessage, name string) (*string, *FieldError) {
	raw, ok := fields[name]
	if !ok {
		return nil, nil
	}
	var val *string
	if err := json.Unmarshal(raw, &val); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, &FieldError{Field: name, Message: "expected " + typeErr.Type.String() + ", got " + typeErr.Value}
		}
		return nil, &FieldError{Field: name, Message: err.Error()}
	}
	return val, nil
}
