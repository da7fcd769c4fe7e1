package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"quicknotes/internal/domain"
	"quicknotes/internal/repository"

	"github.com/go-playground/validator/v10"
)

type UserService struct {
	userRepo repository.UserRepository
	validate *validator.Validate
}

func NewUserService(userRepo repository.UserRepository) *UserService {
	return &UserService{
		userRepo: userRepo,
		validate: validator.New(),
	}
}

func (s *UserService) GetByID(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	user.Password = ""
	return user, nil
}

// UpdateProfile changes the username and/or the onboarding use case.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, req *domain.UpdateProfileRequest) (*domain.User, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, validationFailure(err)
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	if req.Username != nil && *req.Username != user.Username {
		usernameExists, err := s.userRepo.UsernameExists(ctx, *req.Username)
		if err != nil {
			return nil, fmt.Errorf("failed to check username: %w", err)
		}
		if usernameExists {
			return nil, ErrUsernameTaken
		}
		user.Username = *req.Username
	}
	if req.UseCase != nil {
		user.UseCase = *req.UseCase
	}
	user.UpdatedAt = time.Now().UTC()

	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	user.Password = ""
	return user, nil
}
