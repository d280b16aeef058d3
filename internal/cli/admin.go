package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ruff-uno/simonini-isms/internal/jobtread"
	"github.com/ruff-uno/simonini-isms/internal/store"
)

// NewJobTreadCommand creates the jobtread command group.
func NewJobTreadCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobtread",
		Short: "Inspect the JobTread connection",
	}

	cmd.AddCommand(&cobra.Command{
		Use:           "check",
		Short:         "Verify the JobTread API key and organization",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJobTreadCheck(cmd, rootOpts)
		},
	})
	return cmd
}

type connectionResult struct {
	OrganizationID   string `json:"organization_id"`
	OrganizationName string `json:"organization_name"`
	TimeZone         string `json:"time_zone,omitempty"`
}

func (r connectionResult) String() string {
	return fmt.Sprintf("Connected to JobTread organization %s (%s)\n", r.OrganizationName, r.OrganizationID)
}

func runJobTreadCheck(cmd *cobra.Command, opts *RootOptions) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	logger := opts.commandLogger(cmd)

	client, err := newJobTreadClient(cfg, logger)
	if errors.Is(err, jobtread.ErrNoAPIKey) {
		return WrapExitError(ExitCommandError, "JobTread is not configured", err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create JobTread client", err)
	}

	org, err := client.TestConnection(cmd.Context())
	if err != nil {
		return WrapExitError(ExitFailure, "JobTread connection failed", err)
	}
	return opts.formatter(cmd).Success(connectionResult{
		OrganizationID:   org.ID,
		OrganizationName: org.Name,
		TimeZone:         org.TimeZone,
	})
}

// UserAddOptions holds flags for user add.
type UserAddOptions struct {
	*RootOptions
	Email     string
	FirstName string
	LastName  string
	Role      string
	Write     bool
	Delete    bool
	Admin     bool
	Verified  bool
}

// NewUserCommand creates the user command group.
func NewUserCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage local user accounts",
	}

	opts := &UserAddOptions{RootOptions: rootOpts}
	add := &cobra.Command{
		Use:   "add <username>",
		Short: "Create a user account",
		Long: `Create a user account.

Accounts are normally provisioned by the shared login service. This command
creates one directly, for development databases and first-time setup.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserAdd(cmd, opts, args[0])
		},
	}
	add.Flags().StringVar(&opts.Email, "email", "", "email address")
	add.Flags().StringVar(&opts.FirstName, "first-name", "", "first name")
	add.Flags().StringVar(&opts.LastName, "last-name", "", "last name")
	add.Flags().StringVar(&opts.Role, "role", "user", "role label")
	add.Flags().BoolVar(&opts.Write, "write", false, "grant write permission")
	add.Flags().BoolVar(&opts.Delete, "delete", false, "grant delete permission")
	add.Flags().BoolVar(&opts.Admin, "admin", false, "grant admin permission")
	add.Flags().BoolVar(&opts.Verified, "verified", true, "mark the account as verified")
	_ = add.MarkFlagRequired("email")

	cmd.AddCommand(add)
	return cmd
}

type userResult struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"user_role"`
	Admin    bool   `json:"can_admin"`
	Verified bool   `json:"is_verified"`
}

func (r userResult) String() string {
	return fmt.Sprintf("Created user %s (id %d, role %s)\n", r.Username, r.UserID, r.Role)
}

func runUserAdd(cmd *cobra.Command, opts *UserAddOptions, username string) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	logger := opts.commandLogger(cmd)

	st, err := openStore(cfg.Database.Path, logger)
	if err != nil {
		return err
	}
	defer closeStore(st, logger)

	role := opts.Role
	if opts.Admin && role == "user" {
		role = "admin"
	}
	id, err := st.CreateUser(cmd.Context(), store.NewUser{
		Username:   username,
		Email:      opts.Email,
		FirstName:  opts.FirstName,
		LastName:   opts.LastName,
		Role:       role,
		CanWrite:   opts.Write || opts.Admin,
		CanDelete:  opts.Delete || opts.Admin,
		CanAdmin:   opts.Admin,
		IsVerified: opts.Verified,
	})
	if errors.Is(err, store.ErrConflict) {
		return NewExitError(ExitCommandError, fmt.Sprintf("user %q already exists", username))
	}
	if err != nil {
		return WrapExitError(ExitFailure, "failed to create user", err)
	}
	return opts.formatter(cmd).Success(userResult{
		UserID:   id,
		Username: username,
		Role:     role,
		Admin:    opts.Admin,
		Verified: opts.Verified,
	})
}

// SessionIssueOptions holds flags for session issue.
type SessionIssueOptions struct {
	*RootOptions
	TTL time.Duration
}

// NewSessionCommand creates the session command group.
func NewSessionCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage login sessions",
	}

	opts := &SessionIssueOptions{RootOptions: rootOpts}
	issue := &cobra.Command{
		Use:   "issue <username>",
		Short: "Issue a session token for a user",
		Long: `Issue a session token for a user.

The token is accepted as the session cookie or as a Bearer token, which makes
it useful for calling the API from scripts and for local development without
the shared login service.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionIssue(cmd, opts, args[0])
		},
	}
	issue.Flags().DurationVar(&opts.TTL, "ttl", 0, "session lifetime (default: session.ttl from config)")

	revoke := &cobra.Command{
		Use:           "revoke <token>",
		Short:         "Revoke a session token",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionRevoke(cmd, rootOpts, args[0])
		},
	}

	cmd.AddCommand(issue, revoke)
	return cmd
}

type sessionResult struct {
	Username  string    `json:"username"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (r sessionResult) String() string {
	return fmt.Sprintf("%s\n", r.Token)
}

func runSessionIssue(cmd *cobra.Command, opts *SessionIssueOptions, username string) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	logger := opts.commandLogger(cmd)
	out := opts.formatter(cmd)

	st, err := openStore(cfg.Database.Path, logger)
	if err != nil {
		return err
	}
	defer closeStore(st, logger)

	ctx := cmd.Context()
	userID, err := st.UserIDByName(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown user %q", username))
	}
	if err != nil {
		return WrapExitError(ExitFailure, "failed to look up user", err)
	}

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = cfg.SessionTTL()
	}
	token := uuid.NewString()
	expires, err := st.CreateSession(ctx, userID, token, ttl)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to create session", err)
	}
	out.VerboseLog("Session for %s expires at %s", username, expires.Format(time.RFC3339))
	return out.Success(sessionResult{Username: username, Token: token, ExpiresAt: expires})
}

type revokeResult struct {
	Revoked bool `json:"revoked"`
}

func (r revokeResult) String() string { return "Session revoked\n" }

func runSessionRevoke(cmd *cobra.Command, opts *RootOptions, token string) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	logger := opts.commandLogger(cmd)
	out := opts.formatter(cmd)

	st, err := openStore(cfg.Database.Path, logger)
	if err != nil {
		return err
	}
	defer closeStore(st, logger)

	err = st.RevokeSession(cmd.Context(), token)
	if errors.Is(err, store.ErrNotFound) {
		return NewExitError(ExitCommandError, "unknown session token")
	}
	if err != nil {
		return WrapExitError(ExitFailure, "failed to revoke session", err)
	}
	return out.Success(revokeResult{Revoked: true})
}

// NewConfigCommand creates the config command group.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:           "show",
		Short:         "Print the effective configuration with secrets masked",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}
			redacted := cfg.Redacted()
			out := rootOpts.formatter(cmd)
			if out.Format == "json" {
				return out.Success(redacted)
			}
			data, err := redacted.YAML()
			if err != nil {
				return WrapExitError(ExitFailure, "failed to render config", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	})
	return cmd
}
