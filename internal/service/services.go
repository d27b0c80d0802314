package service

import (
	"github.com/dom/live-auction-server/internal/config"
	"github.com/dom/live-auction-server/internal/repository"
)

type Services struct {
	Auth  *AuthService
	Video *VideoService
}

func NewServices(repos *repository.Repositories, cfg *config.Config) *Services {
	return &Services{
		Auth:  NewAuthService(repos.User, repos.Session, cfg),
		Video: NewVideoService(cfg),
	}
}
