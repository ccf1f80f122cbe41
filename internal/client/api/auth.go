package api

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	model "github.com/mri-lab/mri-console/internal/model/session"
)

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Username    string `json:"username"`
	Role        string `json:"role"`
}

// Login exchanges credentials for a session. It does not store the session.
func (c *Client) Login(ctx context.Context, username, password string) (model.Session, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	req, err := c.newRequest(ctx, http.MethodPost, "/api/auth/token", strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	if err != nil {
		return model.Session{}, err
	}

	var tok tokenResponse
	if err := c.send(c.public, req, &tok); err != nil {
		return model.Session{}, err
	}

	name := tok.Username
	if name == "" {
		name = username
	}
	role := model.RoleUser
	if tok.Role != "" {
		role = model.ParseRole(tok.Role)
	}

	return model.Session{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		Username:    name,
		Role:        role,
	}, nil
}

// RegisterRequest 注册请求体。AdminKey 仅在申请管理员角色时需要。
type RegisterRequest struct {
	Username string     `json:"username"`
	Email    string     `json:"email"`
	Password string     `json:"password"`
	Role     model.Role `json:"role"`
	AdminKey string     `json:"admin_key,omitempty"`
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, in RegisterRequest) error {
	if in.Role == "" {
		in.Role = model.RoleUser
	}
	return c.doJSON(ctx, c.public, http.MethodPost, "/api/auth/register", in, nil)
}
