package identity

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/carelink/platform/pkg/common/errs"
	"github.com/carelink/platform/pkg/common/models"
	"gopkg.in/yaml.v3"
)

var emailPattern = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)

type PasswordPolicy struct {
	MinLength         int      `yaml:"min_length" json:"min_length"`
	ForbidNumericOnly bool     `yaml:"forbid_numeric_only" json:"forbid_numeric_only"`
	ForbiddenList     []string `yaml:"forbidden" json:"forbidden"`
}

func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:         8,
		ForbidNumericOnly: true,
		ForbiddenList: []string{
			"password", "12345678", "qwerty123", "letmein1", "password1", "iloveyou",
		},
	}
}

func LoadPasswordPolicy(path string) (PasswordPolicy, error) {
	if path == "" {
		return DefaultPasswordPolicy(), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return DefaultPasswordPolicy(), err
	}

	var policy PasswordPolicy
	if err := yaml.Unmarshal(content, &policy); err != nil {
		return PasswordPolicy{}, err
	}
	if policy.MinLength <= 0 {
		policy.MinLength = DefaultPasswordPolicy().MinLength
	}
	return policy, nil
}

type Validator struct {
	policy    PasswordPolicy
	forbidden map[string]struct{}
}

func NewValidator(policy PasswordPolicy) *Validator {
	forbidden := make(map[string]struct{}, len(policy.ForbiddenList))
	for _, p := range policy.ForbiddenList {
		if trimmed := strings.TrimSpace(strings.ToLower(p)); trimmed != "" {
			forbidden[trimmed] = struct{}{}
		}
	}
	return &Validator{policy: policy, forbidden: forbidden}
}

func (v *Validator) ValidateRegistration(req models.RegisterRequest) error {
	if strings.TrimSpace(req.Username) == "" {
		return errs.Validationf("username is required")
	}
	if err := v.ValidateEmail(req.Email); err != nil {
		return err
	}
	if strings.TrimSpace(req.FirstName) == "" {
		return errs.Validationf("first_name is required")
	}
	if strings.TrimSpace(req.LastName) == "" {
		return errs.Validationf("last_name is required")
	}
	if req.Role != models.RolePatient && req.Role != models.RoleDoctor {
		return errs.Validationf("role must be 'patient' or 'doctor'")
	}
	return v.ValidatePassword(req.Password)
}

func (v *Validator) ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return errs.Validationf("email is required")
	}
	if !emailPattern.MatchString(email) {
		return errs.Validationf("email is not a valid address")
	}
	return nil
}

func (v *Validator) ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < v.policy.MinLength {
		return errs.Validation(fmt.Errorf("password must be at least %d characters", v.policy.MinLength))
	}
	if v.policy.ForbidNumericOnly && isNumericOnly(password) {
		return errs.Validationf("password cannot be entirely numeric")
	}
	if _, ok := v.forbidden[strings.ToLower(password)]; ok {
		return errs.Validationf("password is too common")
	}
	return nil
}

func isNumericOnly(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return len(s) > 0
}
