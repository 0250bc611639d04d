package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/tasknest/backend/internal/apperr"
	"github.com/tasknest/backend/internal/ledger"
	"github.com/tasknest/backend/internal/models"
	"github.com/tasknest/backend/internal/repository"
)

// TopWorkersLimit is how many workers the public leaderboard shows.
const TopWorkersLimit = 6

// AccountInput is the signup payload.
type AccountInput struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	PhotoURL    string `json:"photo_url"`
}

type AccountService struct {
	base
	accounts AccountStore
	entries  LedgerReader
}

func NewAccountService(d Deps, accounts AccountStore, entries LedgerReader) *AccountService {
	return &AccountService{base: newBase(d), accounts: accounts, entries: entries}
}

func signupBonus(role string) int64 {
	if role == models.RoleBuyer {
		return models.SignupBonusBuyer
	}
	return models.SignupBonusWorker
}

// Create registers the caller's account and credits the signup bonus in the
// same transaction. It reports false and the stored account when the email
// is already registered.
func (s *AccountService) Create(ctx context.Context, identity string, in AccountInput) (*models.Account, bool, error) {
	email := strings.TrimSpace(in.Email)
	if email == "" {
		return nil, false, apperr.InvalidArgument("email is required")
	}
	if email != identity {
		return nil, false, apperr.Forbidden("email does not match the verified identity")
	}
	if in.Role != models.RoleBuyer && in.Role != models.RoleWorker {
		return nil, false, apperr.InvalidArgument("role must be buyer or worker")
	}

	acc := &models.Account{
		ID:          uuid.New(),
		Email:       email,
		DisplayName: strings.TrimSpace(in.DisplayName),
		Role:        in.Role,
		PhotoURL:    in.PhotoURL,
	}
	created := false
	err := s.inTx(ctx, "create account", func(ctx context.Context, u *unit) error {
		var err error
		if created, err = s.accounts.CreateTx(ctx, u.tx, acc); err != nil || !created {
			return err
		}
		acc.Coin, err = u.apply(ctx, ledger.Delta{
			Account:  acc.Email,
			Amount:   signupBonus(acc.Role),
			Reason:   models.ReasonSignupBonus,
			SourceID: acc.ID,
		})
		return err
	})
	if err != nil {
		return nil, false, err
	}
	if !created {
		existing, err := s.Get(ctx, email)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	s.logger.Info("account created", "email", acc.Email, "role", acc.Role, "bonus", acc.Coin)
	return acc, true, nil
}

func (s *AccountService) Get(ctx context.Context, email string) (*models.Account, error) {
	ctx, cancel := s.read(ctx)
	defer cancel()
	acc, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		return nil, s.classify("get account", notFoundAs(err, "account not found"))
	}
	return acc, nil
}

// Role returns the account's role, or worker when the email is not registered.
func (s *AccountService) Role(ctx context.Context, email string) (string, error) {
	ctx, cancel := s.read(ctx)
	defer cancel()
	acc, err := s.accounts.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return models.RoleWorker, nil
	}
	if err != nil {
		return "", s.classify("get role", err)
	}
	return acc.Role, nil
}

func (s *AccountService) TopWorkers(ctx context.Context) ([]*models.Account, error) {
	ctx, cancel := s.read(ctx)
	defer cancel()
	list, err := s.accounts.TopWorkers(ctx, TopWorkersLimit)
	if err != nil {
		return nil, s.classify("top workers", err)
	}
	return list, nil
}

func (s *AccountService) List(ctx context.Context, search string) ([]*models.Account, error) {
	ctx, cancel := s.read(ctx)
	defer cancel()
	list, err := s.accounts.List(ctx, strings.TrimSpace(search))
	if err != nil {
		return nil, s.classify("list accounts", err)
	}
	return list, nil
}

func (s *AccountService) UpdateRole(ctx context.Context, admin string, id uuid.UUID, role string) error {
	if !models.ValidRole(role) {
		return apperr.InvalidArgument("unknown role " + role)
	}
	ctx, cancel := s.read(ctx)
	defer cancel()
	if err := s.accounts.UpdateRole(ctx, id, role); err != nil {
		return s.classify("update role", notFoundAs(err, "account not found"))
	}
	s.logger.Info("role updated", "account_id", id, "role", role, "admin", admin)
	return nil
}

// UpdateProfile changes the provided profile fields of the caller's own account.
func (s *AccountService) UpdateProfile(ctx context.Context, caller string, id uuid.UUID, p models.ProfileUpdate) (*models.Account, error) {
	ctx, cancel := s.read(ctx)
	defer cancel()
	current, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, s.classify("update profile", notFoundAs(err, "account not found"))
	}
	if current.Email != caller {
		return nil, apperr.Forbidden("cannot edit another identity's profile")
	}
	acc, err := s.accounts.UpdateProfile(ctx, id, p)
	if err != nil {
		return nil, s.classify("update profile", notFoundAs(err, "account not found"))
	}
	return acc, nil
}

// Delete removes an account that holds no open tasks, pending submissions or
// pending withdrawals. The account row is locked so no new escrow can be
// posted against it while the check runs.
func (s *AccountService) Delete(ctx context.Context, admin string, id uuid.UUID) error {
	var email string
	err := s.inTx(ctx, "delete account", func(ctx context.Context, u *unit) error {
		acc, err := s.accounts.GetByIDForUpdate(ctx, u.tx, id)
		if err != nil {
			return notFoundAs(err, "account not found")
		}
		email = acc.Email
		open, err := s.accounts.OpenObligationsTx(ctx, u.tx, acc.Email)
		if err != nil {
			return err
		}
		if open > 0 {
			return apperr.InvalidTransition(fmt.Sprintf("account has %d open obligations; settle them first", open))
		}
		return notFoundAs(s.accounts.DeleteTx(ctx, u.tx, id), "account not found")
	})
	if err != nil {
		return err
	}
	s.logger.Warn("account deleted", "account_id", id, "email", email, "admin", admin)
	return nil
}

// Ledger returns the account's balance with every entry recorded against it.
func (s *AccountService) Ledger(ctx context.Context, email string) (*models.LedgerStatement, error) {
	acc, err := s.Get(ctx, email)
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.read(ctx)
	defer cancel()
	entries, err := s.entries.ListByAccount(ctx, email)
	if err != nil {
		return nil, s.classify("account ledger", err)
	}
	if entries == nil {
		entries = []*models.LedgerEntry{}
	}
	return &models.LedgerStatement{Email: acc.Email, Balance: acc.Coin, Entries: entries}, nil
}
