package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"golang.org/x/net/publicsuffix"

	domainauth "github.com/acadvault/acadvault-api/internal/domain/auth"
	apperrors "github.com/acadvault/acadvault-api/internal/errors"
)

// SignUpRequest is the sign-up form as submitted by the browser.
type SignUpRequest struct {
	Email           string `json:"email"            validate:"required,email"`
	Password        string `json:"password"         validate:"required,min=6"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=Password"`
	FullName        string `json:"full_name"        validate:"notblank"`
	Role            string `json:"role"             validate:"required,oneof=admin faculty student"`
	Department      string `json:"department"       validate:"omitempty,department"`
	RollNumber      string `json:"roll_number"`
}

// Metadata returns the normalized profile metadata carried with the new identity.
// The roll number survives only for students.
func (r SignUpRequest) Metadata() domainauth.SignUpMetadata {
	dept := r.Department
	roll := r.RollNumber
	return domainauth.SignUpMetadata{
		FullName:   r.FullName,
		Role:       domainauth.Role(r.Role),
		Department: &dept,
		RollNumber: &roll,
	}.Normalize()
}

const (
	notBlankTag   = "notblank"
	departmentTag = "department"
)

// fieldMessages override the generic translations for specific field/tag pairs.
var fieldMessages = map[string]string{ //nolint:gochecknoglobals // fixed catalogue
	"confirm_password.eqfield": "Passwords do not match",
	"password.min":             "Password must be at least 6 characters",
	"full_name.notblank":       "Full name is required",
	"role.oneof":               "Select a role: admin, faculty or student",
	"department.department":    "Select a valid department",
}

// SignUpValidator validates sign-up requests and enforces the email domain allow-list.
type SignUpValidator struct {
	validate       *validator.Validate
	translator     ut.Translator
	allowedDomains []string
}

// NewSignUpValidator builds a validator. allowedDomains may be empty to accept any domain.
func NewSignUpValidator(allowedDomains []string) (*SignUpValidator, error) {
	v := validator.New(validator.WithRequiredStructEnabled())

	english := en.New()
	uni := ut.New(english, english)
	trans, _ := uni.GetTranslator("en")
	if err := en_translations.RegisterDefaultTranslations(v, trans); err != nil {
		return nil, fmt.Errorf("register translations: %w", err)
	}

	// Use JSON tag names for errors instead of Go struct names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	if err := v.RegisterValidation(notBlankTag, func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	}); err != nil {
		return nil, fmt.Errorf("register %s: %w", notBlankTag, err)
	}
	if err := v.RegisterValidation(departmentTag, func(fl validator.FieldLevel) bool {
		return domainauth.IsDepartment(strings.TrimSpace(fl.Field().String()))
	}); err != nil {
		return nil, fmt.Errorf("register %s: %w", departmentTag, err)
	}

	domains := make([]string, 0, len(allowedDomains))
	for _, d := range allowedDomains {
		if reg := registrableDomain(d); reg != "" {
			domains = append(domains, reg)
		}
	}

	return &SignUpValidator{validate: v, translator: trans, allowedDomains: domains}, nil
}

// Validate returns the first problem with req as an apperrors validation error
// naming the offending field.
func (s *SignUpValidator) Validate(req SignUpRequest) error {
	req.Email = strings.TrimSpace(req.Email)
	if err := s.validate.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
			return apperrors.Wrap(err, apperrors.ErrCodeValidation, "Invalid sign-up request")
		}
		fe := fieldErrs[0]
		return apperrors.ValidationField(fe.Field(), s.message(fe))
	}
	if !s.EmailDomainAllowed(req.Email) {
		return apperrors.ValidationField("email", "Sign up is restricted to institutional email addresses")
	}
	return nil
}

func (s *SignUpValidator) message(fe validator.FieldError) string {
	if msg, ok := fieldMessages[fe.Field()+"."+fe.Tag()]; ok {
		return msg
	}
	return fe.Translate(s.translator)
}

// EmailDomainAllowed reports whether email's registrable domain is on the allow-list.
func (s *SignUpValidator) EmailDomainAllowed(email string) bool {
	if len(s.allowedDomains) == 0 {
		return true
	}
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return false
	}
	reg := registrableDomain(email[at+1:])
	for _, d := range s.allowedDomains {
		if reg == d {
			return true
		}
	}
	return false
}

// registrableDomain returns the eTLD+1 of host, or "" when host has none.
func registrableDomain(host string) string {
	host = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")
	if host == "" {
		return ""
	}
	reg, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return ""
	}
	return reg
}
