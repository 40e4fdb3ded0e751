package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/NelsonFranklinWere/emil/backend/internal/apiclient"
	"github.com/NelsonFranklinWere/emil/backend/internal/domain"
	"github.com/NelsonFranklinWere/emil/backend/internal/guard"
	"github.com/NelsonFranklinWere/emil/backend/internal/session"
)

var errAccessDenied = errors.New("access denied")

func newLoginCmd(factory Factory) *cobra.Command {
	creds := apiclient.Credentials{}
	var pw *passwordInput
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := pw.resolve(cmd); err != nil {
				return err
			}
			return run(cmd, factory, func(ctx context.Context, svc *session.Service) error {
				return report(cmd, svc, svc.Login(ctx, creds))
			})
		},
	}
	cmd.Flags().StringVar(&creds.Email, "email", "", "account email")
	pw = bindPassword(cmd, &creds.Password, "account password")
	return cmd
}

func newRegisterCmd(factory Factory) *cobra.Command {
	p := apiclient.Profile{}
	var pw *passwordInput
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a candidate account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := pw.resolve(cmd); err != nil {
				return err
			}
			return run(cmd, factory, func(ctx context.Context, svc *session.Service) error {
				return report(cmd, svc, svc.Register(ctx, p))
			})
		},
	}
	cmd.Flags().StringVar(&p.FirstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&p.LastName, "last-name", "", "last name")
	cmd.Flags().StringVar(&p.Email, "email", "", "account email")
	pw = bindPassword(cmd, &p.Password, "password, at least 8 characters")
	cmd.Flags().StringVar(&p.Phone, "phone", "", "phone number")
	return cmd
}

func newRegisterCompanyCmd(factory Factory) *cobra.Command {
	p := apiclient.CompanyProfile{}
	var pw *passwordInput
	cmd := &cobra.Command{
		Use:   "register-company",
		Short: "Create an employer account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := pw.resolve(cmd); err != nil {
				return err
			}
			return run(cmd, factory, func(ctx context.Context, svc *session.Service) error {
				return report(cmd, svc, svc.RegisterCompany(ctx, p))
			})
		},
	}
	cmd.Flags().StringVar(&p.CompanyName, "company-name", "", "company name")
	cmd.Flags().StringVar(&p.ContactName, "contact-name", "", "contact person")
	cmd.Flags().StringVar(&p.Email, "email", "", "account email")
	pw = bindPassword(cmd, &p.Password, "password, at least 8 characters")
	cmd.Flags().StringVar(&p.Industry, "industry", "", "industry")
	cmd.Flags().StringVar(&p.CompanySize, "company-size", "", "company size band")
	cmd.Flags().StringVar(&p.Website, "website", "", "company website")
	cmd.Flags().StringVar(&p.Phone, "phone", "", "phone number")
	return cmd
}

func newFederatedCmd(factory Factory) *cobra.Command {
	p := apiclient.FederatedPayload{}
	cmd := &cobra.Command{
		Use:   "federated",
		Short: "Sign in with an identity provider token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, factory, func(ctx context.Context, svc *session.Service) error {
				return report(cmd, svc, svc.AuthenticateWithFederatedProvider(ctx, p))
			})
		},
	}
	cmd.Flags().StringVar(&p.Provider, "provider", "google", "identity provider")
	cmd.Flags().StringVar(&p.IDToken, "id-token", "", "ID token issued by the provider")
	cmd.Flags().StringVar(&p.Email, "email", "", "email asserted by the provider")
	cmd.Flags().StringVar(&p.Name, "name", "", "display name asserted by the provider")
	cmd.Flags().StringVar(&p.Picture, "picture", "", "avatar URL")
	return cmd
}

func newLogoutCmd(factory Factory) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, factory, func(ctx context.Context, svc *session.Service) error {
				svc.Logout(ctx)
				fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
				return nil
			})
		},
	}
}

func newStatusCmd(factory Factory) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the restored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, factory, func(ctx context.Context, svc *session.Service) error {
				u, ok := svc.User()
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "Not signed in.")
					return nil
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Signed in as %s <%s>\n", u.DisplayName, u.Email)
				fmt.Fprintf(out, "Role:         %s\n", u.Role)
				if u.OrganizationName != "" {
					fmt.Fprintf(out, "Organization: %s\n", u.OrganizationName)
				}
				fmt.Fprintf(out, "Verified:     %t\n", u.EmailVerified)
				return nil
			})
		},
	}
}

func newCheckCmd(factory Factory) *cobra.Command {
	var (
		path        string
		roles       []string
		requireAuth bool
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Evaluate whether the session may open a page",
		Long: `check runs the route guard against the restored session and prints the
outcome. It exits non-zero when access would be refused.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			allowed := make([]domain.Role, 0, len(roles))
			for _, r := range roles {
				role, err := domain.ParseRole(r)
				if err != nil {
					return fmt.Errorf("--role %q: %w", r, err)
				}
				allowed = append(allowed, role)
			}

			return run(cmd, factory, func(ctx context.Context, svc *session.Service) error {
				g := guard.New(svc, nil, guard.Options{Path: path, RequireAuth: requireAuth, AllowedRoles: allowed})
				outcome := g.Current()
				switch outcome.State {
				case guard.Authorized:
					fmt.Fprintf(cmd.OutOrStdout(), "authorized: %s\n", path)
					return nil
				case guard.Unauthorized:
					fmt.Fprintf(cmd.OutOrStdout(), "unauthorized: %s -> %s\n", path, outcome.Redirect)
					return errAccessDenied
				default:
					return fmt.Errorf("session still %s", outcome.State)
				}
			})
		},
	}
	cmd.Flags().StringVar(&path, "path", "/dashboard", "page path to evaluate")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "allowed role; repeat for several")
	cmd.Flags().BoolVar(&requireAuth, "require-auth", true, "page requires a signed-in user")
	return cmd
}
