package security

// LoginInput is the login request body.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=128"`
}

// RegisterInput is the registration request body.
type RegisterInput struct {
	Email           string `json:"email" validate:"required,email,max=254"`
	Password        string `json:"password" validate:"required,strongpassword,secretbytes"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
	Name            string `json:"name" validate:"required,min=2,max=100,personname"`
	Company         string `json:"company" validate:"required,min=2,max=100"`
	Role            string `json:"role" validate:"omitempty,role"`
}

// RefreshInput is the refresh request body.
type RefreshInput struct {
	RefreshToken string `json:"refreshToken" validate:"required,max=4096"`
}

// ChangePasswordInput is the password change request body.
type ChangePasswordInput struct {
	CurrentPassword string `json:"currentPassword" validate:"required,max=128"`
	NewPassword     string `json:"newPassword" validate:"required,strongpassword,secretbytes,nefield=CurrentPassword"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=NewPassword"`
}
