package session

// Role 用户角色。
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// 本地存储中的键名，与网页端 localStorage 保持一致。
const (
	KeyAccessToken = "access_token"
	KeyTokenType   = "token_type"
	KeyUsername    = "username"
	KeyRole        = "user_role"
)

// Keys lists every storage key owned by a session.
var Keys = []string{KeyAccessToken, KeyTokenType, KeyUsername, KeyRole}

// DefaultTokenType is used when the backend omitted token_type.
const DefaultTokenType = "Bearer"

// Session is the credential bundle cached from the backend's token response.
type Session struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Username    string `json:"username"`
	Role        Role   `json:"role"`
}

// Authorization renders the header value "<type> <token>".
func (s Session) Authorization() string {
	tokenType := s.TokenType
	if tokenType == "" {
		tokenType = DefaultTokenType
	}
	return tokenType + " " + s.AccessToken
}

// ParseRole normalizes a stored role; anything unknown is a plain user.
func ParseRole(raw string) Role {
	if Role(raw) == RoleAdmin {
		return RoleAdmin
	}
	return RoleUser
}
