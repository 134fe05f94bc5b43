package api

// User is the profile record returned by the backend and persisted next
// to the access token.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	CreatedAt string `json:"created_at"`
	IsActive  bool   `json:"is_active"`
}

// LoginRequest is the body for POST /v1/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is the body returned by POST /v1/auth/login.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	User        User   `json:"user"`
}

// RegisterRequest is the body for POST /v1/auth/register.
type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// ConfirmEmailRequest is the body for POST /v1/auth/confirm-email.
type ConfirmEmailRequest struct {
	Email            string `json:"email"`
	ConfirmationCode string `json:"confirmation_code"`
}

// ResendConfirmationRequest is the body for POST /v1/auth/resend-confirmation.
type ResendConfirmationRequest struct {
	Email string `json:"email"`
}

// ProfileUpdate carries only the fields being changed; nil pointers are
// omitted from the PUT /v1/users/me body.
type ProfileUpdate struct {
	Email     *string `json:"email,omitempty"`
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
}

// AuthURLResponse is the body returned by GET /dexcom/auth-url.
type AuthURLResponse struct {
	AuthorizationURL string `json:"authorization_url"`
	State            string `json:"state"`
}

// CallbackRequest is the body for POST /dexcom/callback.
type CallbackRequest struct {
	Code string `json:"code"`
}

// ConnectionStatus is the body returned by GET /dexcom/status.
type ConnectionStatus struct {
	Connected bool    `json:"connected"`
	ExpiresAt *string `json:"expires_at"`
}

// MessageResponse is the generic acknowledgement body.
type MessageResponse struct {
	Message string `json:"message"`
}
