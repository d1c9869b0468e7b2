package user

import "testing"

func TestUser_Initial(t *testing.T) {
	tests := []struct {
		name string
		user User
		want string
	}{
		{"first name", User{FirstName: "adrian", Email: "a@example.com"}, "A"},
		{"falls back to email", User{Email: "zoe@example.com"}, "Z"},
		{"unicode", User{FirstName: "élodie"}, "É"},
		{"empty", User{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.user.Initial(); got != tt.want {
				t.Errorf("Initial() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCreateUserParams_Validate(t *testing.T) {
	tests := []struct {
		name    string
		params  CreateUserParams
		wantErr bool
	}{
		{"valid", CreateUserParams{Email: "a@example.com", FirstName: "Ada"}, false},
		{"bad email", CreateUserParams{Email: "nope", FirstName: "Ada"}, true},
		{"missing first name", CreateUserParams{Email: "a@example.com", FirstName: "  "}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.params.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
