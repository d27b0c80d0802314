package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dom/live-auction-server/internal/config"
)

var ErrVideoNotConfigured = errors.New("video credentials are not configured")

const videoTokenTTL = 10 * time.Minute

// VideoService issues short-lived credentials for the realtime video channel
// attached to an auction. The channel id is the auction id.
type VideoService struct {
	cfg *config.Config
}

func NewVideoService(cfg *config.Config) *VideoService {
	return &VideoService{cfg: cfg}
}

type VideoToken struct {
	AppID     string `json:"appId"`
	ChannelID string `json:"channelId"`
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiresAt"`
}

func (s *VideoService) IssueToken(auctionID, userID uuid.UUID) (*VideoToken, error) {
	if s.cfg.VideoAppID == "" || s.cfg.VideoAppCert == "" {
		return nil, ErrVideoNotConfigured
	}

	expiresAt := time.Now().Add(videoTokenTTL).Unix()
	payload := fmt.Sprintf("%s:%s:%s:%d", s.cfg.VideoAppID, auctionID, userID, expiresAt)

	mac := hmac.New(sha256.New, []byte(s.cfg.VideoAppCert))
	mac.Write([]byte(payload))
	sig := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))

	return &VideoToken{
		AppID:     s.cfg.VideoAppID,
		ChannelID: auctionID.String(),
		Token:     base64.RawURLEncoding.EncodeToString([]byte(payload)) + "." + sig,
		ExpiresAt: expiresAt,
	}, nil
}
