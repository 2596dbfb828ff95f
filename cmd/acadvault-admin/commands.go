package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"golang.org/x/crypto/bcrypt"

	redisadapter "github.com/acadvault/acadvault-api/internal/adapters/redis"
	"github.com/acadvault/acadvault-api/internal/bootstrap"
	"github.com/acadvault/acadvault-api/internal/data"
	domainauth "github.com/acadvault/acadvault-api/internal/domain/auth"
	apperrors "github.com/acadvault/acadvault-api/internal/errors"
	"github.com/acadvault/acadvault-api/internal/ports"
	"github.com/acadvault/acadvault-api/internal/service"
)

const (
	defaultMigrationTimeout = 5 * time.Minute
	defaultCommandTimeout   = 30 * time.Second
)

type migrateOptions struct {
	Timeout time.Duration
}

type createUserOptions struct {
	Email       string
	Password    string
	FullName    string
	Role        string
	Department  string
	RollNumber  string
	Unconfirmed bool
	JSON        bool
}

type profileOptions struct {
	Email string
	JSON  bool
}

func runMigrations(cmdCtx *commandContext, args []string) error {
	opts, err := parseMigrateFlags(args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmdCtx.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	db, err := connectDB(ctx, cmdCtx.Logger, &cmdCtx.Config)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", closeErr)
		}
	}()

	cmdCtx.Logger.Info("running database migrations")
	if migrateErr := bootstrap.RunMigrations(ctx, db, cmdCtx.Logger); migrateErr != nil {
		return migrateErr
	}
	cmdCtx.Logger.Info("migrations completed successfully")
	return nil
}

func runCreateUser(cmdCtx *commandContext, args []string) error {
	opts, err := parseCreateUserFlags(args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmdCtx.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultCommandTimeout)
	defer cancel()

	db, err := connectDB(ctx, cmdCtx.Logger, &cmdCtx.Config)
	if err != nil {
		return err
	}
	creator := userCreator{
		Accounts: data.NewAccountRepo(db),
		Profiles: data.NewProfileRepo(db),
		Clock:    data.RealClock{},
		Logger:   cmdCtx.Logger,
	}

	redisClient, err := maybeConnectRedis(ctx, cmdCtx.Logger, &cmdCtx.Config.Redis)
	switch {
	case err == nil:
		creator.Cache = redisadapter.NewProfileCache(redisadapter.ProfileCacheOptions{
			Client: redisClient,
			Prefix: cmdCtx.Config.Redis.KeyPrefix,
			Logger: cmdCtx.Logger,
		})
	case errors.Is(err, errRedisNotConfigured):
		cmdCtx.Logger.Info("no redis configuration detected; skipping profile cache invalidation")
	default:
		cmdCtx.Logger.Warn("redis unavailable; skipping profile cache invalidation", "error", err)
	}
	defer func() {
		if closeErr := closeInfra(db, redisClient); closeErr != nil {
			cmdCtx.Logger.Warn("close infrastructure failed", "error", closeErr)
		}
	}()

	profile, err := creator.create(ctx, opts)
	if err != nil {
		return err
	}
	return printProfile(cmdCtx.Out, profile, opts.JSON)
}

func runProfile(cmdCtx *commandContext, args []string) error {
	opts, err := parseProfileFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	db, err := connectDB(ctx, cmdCtx.Logger, &cmdCtx.Config)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", closeErr)
		}
	}()

	profile, err := data.NewProfileRepo(db).FindByEmail(ctx, opts.Email)
	if err != nil {
		if errors.Is(err, domainauth.ErrProfileNotFound) {
			return fmt.Errorf("no profile registered for %s", opts.Email)
		}
		return err
	}
	return printProfile(cmdCtx.Out, profile, opts.JSON)
}

type accountCreator interface {
	Create(ctx context.Context, req data.CreateAccountRequest) (*data.Account, error)
}

type profileInvalidator interface {
	Invalidate(ctx context.Context, subjectID string) error
}

// userCreator provisions an account and profile the way self sign-up would,
// without the email domain allow-list.
type userCreator struct {
	Accounts accountCreator
	Profiles ports.ProfileProvisioner
	// Cache is optional.
	Cache profileInvalidator
	Clock ports.Clock
	// Cost defaults to bcrypt.DefaultCost.
	Cost   int
	Logger *slog.Logger
}

func (u userCreator) create(ctx context.Context, opts createUserOptions) (*domainauth.Profile, error) {
	validator, err := service.NewSignUpValidator(nil)
	if err != nil {
		return nil, err
	}
	req := service.SignUpRequest{
		Email:           opts.Email,
		Password:        opts.Password,
		ConfirmPassword: opts.Password,
		FullName:        opts.FullName,
		Role:            opts.Role,
		Department:      opts.Department,
		RollNumber:      opts.RollNumber,
	}
	if err = validator.Validate(req); err != nil {
		field := apperrors.GetField(err)
		if !apperrors.IsValidation(err) || field == "" {
			return nil, err
		}
		return nil, fmt.Errorf("--%s: %s", strings.ReplaceAll(field, "_", "-"), apperrors.UserMessage(err, err.Error()))
	}

	cost := u.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	meta := req.Metadata()
	accountReq := data.CreateAccountRequest{
		Email:        strings.TrimSpace(req.Email),
		PasswordHash: string(hash),
		Metadata:     meta,
	}
	if !opts.Unconfirmed {
		now := u.Clock.Now().UTC()
		accountReq.ConfirmedAt = &now
	}

	acct, err := u.Accounts.Create(ctx, accountReq)
	if apperrors.IsConflict(err) {
		return nil, fmt.Errorf("%s is already registered: %w", accountReq.Email, err)
	}
	if err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}
	profile, err := u.Profiles.ProvisionProfile(ctx, acct.Identity(), meta)
	if err != nil {
		return nil, fmt.Errorf("provision profile: %w", err)
	}

	if u.Cache != nil {
		if cacheErr := u.Cache.Invalidate(ctx, acct.ID); cacheErr != nil && u.Logger != nil {
			u.Logger.WarnContext(ctx, "profile cache invalidation failed", "user_id", acct.ID, "error", cacheErr)
		}
	}
	if u.Logger != nil {
		u.Logger.InfoContext(ctx, "user created", "user_id", acct.ID, "role", profile.Role)
	}
	return profile, nil
}

func printProfile(w io.Writer, p *domainauth.Profile, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	rows := [][2]string{
		{"User ID", p.UserID},
		{"Email", p.Email},
		{"Full name", p.FullName},
		{"Role", string(p.Role)},
		{"Department", deref(p.Department)},
		{"Roll number", deref(p.RollNumber)},
	}
	for _, row := range rows {
		if err := writef(tw, "%s:\t%s\n", row[0], row[1]); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func deref(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func parseMigrateFlags(args []string) (migrateOptions, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := migrateOptions{Timeout: defaultMigrationTimeout}
	fs.DurationVar(&opts.Timeout, "timeout", defaultMigrationTimeout, "Maximum duration to wait for migrations to complete")

	if err := fs.Parse(args); err != nil {
		return migrateOptions{}, err
	}
	if opts.Timeout <= 0 {
		return migrateOptions{}, errors.New("--timeout must be greater than zero")
	}
	return opts, nil
}

func parseCreateUserFlags(args []string) (createUserOptions, error) {
	fs := flag.NewFlagSet("create-user", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts createUserOptions
	fs.StringVar(&opts.Email, "email", "", "Email address (required)")
	fs.StringVar(&opts.Password, "password", "", "Password; falls back to ACADVAULT_ADMIN_PASSWORD")
	fs.StringVar(&opts.FullName, "full-name", "", "Full name (required)")
	fs.StringVar(&opts.Role, "role", "", "Role: admin, faculty or student (required)")
	fs.StringVar(&opts.Department, "department", "", "Department")
	fs.StringVar(&opts.RollNumber, "roll-number", "", "Roll number (students only)")
	fs.BoolVar(&opts.Unconfirmed, "unconfirmed", false, "Leave the email unconfirmed")
	fs.BoolVar(&opts.JSON, "json", false, "Print the created profile as JSON")

	if err := fs.Parse(args); err != nil {
		return createUserOptions{}, err
	}

	opts.Email = strings.TrimSpace(opts.Email)
	opts.Role = strings.ToLower(strings.TrimSpace(opts.Role))
	if opts.Password == "" {
		opts.Password = os.Getenv("ACADVAULT_ADMIN_PASSWORD")
	}
	if opts.Email == "" {
		return createUserOptions{}, errors.New("--email is required")
	}
	if opts.Password == "" {
		return createUserOptions{}, errors.New("--password or ACADVAULT_ADMIN_PASSWORD is required")
	}
	if opts.Role == "" {
		return createUserOptions{}, errors.New("--role is required")
	}
	return opts, nil
}

func parseProfileFlags(args []string) (profileOptions, error) {
	fs := flag.NewFlagSet("profile", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts profileOptions
	fs.StringVar(&opts.Email, "email", "", "Email address to look up (required)")
	fs.BoolVar(&opts.JSON, "json", false, "Print the profile as JSON")

	if err := fs.Parse(args); err != nil {
		return profileOptions{}, err
	}
	opts.Email = strings.TrimSpace(opts.Email)
	if opts.Email == "" {
		return profileOptions{}, errors.New("--email is required")
	}
	return opts, nil
}
