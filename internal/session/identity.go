package session

import (
	"errors"
	"strings"

	"github.com/NelsonFranklinWere/emil/backend/internal/apiclient"
	"github.com/NelsonFranklinWere/emil/backend/internal/domain"
)

var (
	errMissingToken = errors.New("authentication response carried no token")
	errMissingRole  = errors.New("account role missing")
	errUnknownRole  = errors.New("account role not recognized")
)

type flow struct {
	name     string
	fallback string
}

var (
	flowLogin           = flow{name: "login", fallback: "Login failed. Please try again."}
	flowRegister        = flow{name: "register", fallback: "Registration failed. Please try again."}
	flowRegisterCompany = flow{name: "register_company", fallback: "Company registration failed. Please try again."}
	flowFederated       = flow{name: "federated", fallback: "Sign-in with provider failed. Please try again."}
)

// message picks the text shown to the user for err.
func (f flow) message(err error) string {
	var apiErr *apiclient.Error
	switch {
	case errors.As(err, &apiErr) && apiErr.Status != 0 && apiErr.Message != "":
		return apiErr.Message
	case errors.Is(err, errMissingRole), errors.Is(err, errUnknownRole):
		return "Your account has no valid role assigned. Please contact support."
	default:
		return f.fallback
	}
}

// identityHint carries the form fields a flow submitted, used where the
// response leaves a field blank.
type identityHint struct {
	Email            string
	DisplayName      string
	OrganizationName string
	AvatarURL        string
}

func (s *Service) buildIdentity(resp *apiclient.AuthResponse, hint identityHint) (*domain.Identity, error) {
	if resp == nil || strings.TrimSpace(resp.Token) == "" {
		return nil, errMissingToken
	}
	u := resp.User
	if u == nil {
		u = &apiclient.User{}
	}

	role := s.defaultRole
	if strings.TrimSpace(u.Role) != "" {
		parsed, err := domain.ParseRole(u.Role)
		if err != nil {
			return nil, errors.Join(errUnknownRole, err)
		}
		role = parsed
	}
	if role == "" {
		return nil, errMissingRole
	}

	email := firstNonEmpty(u.Email, hint.Email)
	return &domain.Identity{
		ID:               string(u.ID),
		Email:            email,
		DisplayName:      firstNonEmpty(u.DisplayName, u.Name, joinName(u.FirstName, u.LastName), hint.DisplayName, email),
		OrganizationName: firstNonEmpty(u.OrganizationName, u.CompanyName, hint.OrganizationName),
		Role:             role,
		EmailVerified:    u.EmailVerified,
		AvatarURL:        firstNonEmpty(u.AvatarURL, u.Avatar, hint.AvatarURL),
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func joinName(first, last string) string {
	return strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
}
