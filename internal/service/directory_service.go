// internal/service/directory_service.go
package service

import (
	"context"

	"github.com/unclebandit/campusconnect-mailer/internal/model"
	"github.com/unclebandit/campusconnect-mailer/internal/repository"
)

type UserGroups struct {
	Users []model.Recipient `json:"users"`
	Count int               `json:"count"`
}

type DirectoryService struct {
	Directory repository.RecipientRepositoryInterface
}

// UserGroups lists the active users a campaign can target.
func (s *DirectoryService) UserGroups(ctx context.Context) (*UserGroups, error) {
	users, err := s.Directory.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	return &UserGroups{Users: users, Count: len(users)}, nil
}
