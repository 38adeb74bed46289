package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kendall-kelly/lunchbox-orders-api/config"
	"github.com/kendall-kelly/lunchbox-orders-api/utils"
	"github.com/rs/zerolog/log"
)

// Auth0UserInfo represents the user information returned from Auth0's /userinfo endpoint
type Auth0UserInfo struct {
	Sub         string `json:"sub"` // Auth0 user ID
	Email       string `json:"email"`
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number,omitempty"` // only with the phone scope
}

// Phone returns the phone number in the digits-only form orders are stored with
func (u Auth0UserInfo) Phone() string {
	phone := utils.NormalizePhone(u.PhoneNumber)
	// +82 10-... becomes 010...
	if strings.HasPrefix(phone, "82") && len(phone) >= 10 {
		phone = "0" + phone[2:]
	}
	return phone
}

// Auth0Service fetches profiles for customers and admins signing up
type Auth0Service struct {
	userInfoURL string
	httpClient  *http.Client
}

var auth0Client = &http.Client{Timeout: 10 * time.Second}

// NewAuth0Service creates a new Auth0 service instance
func NewAuth0Service(cfg *config.Config) *Auth0Service {
	domain := strings.TrimSuffix(cfg.Auth0Domain, "/")
	// tests point the domain at a local server with an explicit scheme
	if !strings.HasPrefix(domain, "http://") && !strings.HasPrefix(domain, "https://") {
		domain = "https://" + domain
	}
	return &Auth0Service{
		userInfoURL: domain + "/userinfo",
		httpClient:  auth0Client,
	}
}

// GetUserInfo fetches the profile behind accessToken from the /userinfo endpoint
func (s *Auth0Service) GetUserInfo(ctx context.Context, accessToken string) (*Auth0UserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call userinfo endpoint: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to close userinfo response")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("userinfo endpoint returned status %d: %s", resp.StatusCode, string(body))
	}

	var userInfo Auth0UserInfo
	if err := json.NewDecoder(resp.Body).Decode(&userInfo); err != nil {
		return nil, fmt.Errorf("failed to decode userinfo response: %w", err)
	}

	return &userInfo, nil
}
