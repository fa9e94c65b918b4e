package auth

import (
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	MinUsernameLength = 4
	// bcrypt rejects anything past 72 bytes.
	MaxPasswordBytes = 72
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// max counts runes on strings; maxbytes counts bytes.
	if err := v.RegisterValidation("maxbytes", func(fl validator.FieldLevel) bool {
		limit, err := strconv.Atoi(fl.Param())
		return err == nil && len(fl.Field().String()) <= limit
	}); err != nil {
		panic(err)
	}
	return v
}

type rule struct {
	tag string
	msg string
}

// field is one input value and the rules it must satisfy. Every rule is
// checked, so a value can collect more than one violation.
type field struct {
	param  string
	value  string
	secret bool
	rules  []rule
}

var (
	usernameRules = []rule{
		{fmt.Sprintf("min=%d", MinUsernameLength), fmt.Sprintf("Username must be at least %d characters long", MinUsernameLength)},
		{"alphanum", "Username contains non alphanumeric chars - not allowed"},
	}
	passwordRules = []rule{
		{"required", "Password is required"},
		{fmt.Sprintf("maxbytes=%d", MaxPasswordBytes), fmt.Sprintf("Password must be at most %d bytes long", MaxPasswordBytes)},
	}
	emailRules = []rule{
		{"email", "Email does not appear to be valid"},
	}
)

func check(fields ...field) []Violation {
	var out []Violation
	for _, f := range fields {
		for _, r := range f.rules {
			if err := validate.Var(f.value, r.tag); err == nil {
				continue
			}
			v := Violation{Param: f.param, Msg: r.msg, Value: f.value, Location: "body"}
			if f.secret {
				v.Value = ""
			}
			out = append(out, v)
		}
	}
	return out
}

// parseBirthday accepts a calendar date or a full RFC 3339 timestamp. An
// empty value means "not given".
func parseBirthday(value string) (*time.Time, bool) {
	if value == "" {
		return nil, true
	}
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			t = t.UTC()
			return &t, true
		}
	}
	return nil, false
}

func birthdayViolation(value string) Violation {
	return Violation{Param: "Birthday", Msg: "Birthday must be a date (YYYY-MM-DD)", Value: value, Location: "body"}
}

func validationError(violations []Violation) error {
	if len(violations) == 0 {
		return nil
	}
	return &ValidationError{Violations: violations}
}
