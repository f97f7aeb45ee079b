package auth

import (
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// SeedUser is one entry of a users file. Exactly one of Password and
// PasswordHash is expected; a plain password is hashed at load.
type SeedUser struct {
	ID           string   `yaml:"id"`
	Username     string   `yaml:"username"`
	Password     string   `yaml:"password"`
	PasswordHash string   `yaml:"password_hash"`
	Roles        []string `yaml:"roles"`
}

type usersFile struct {
	Users []SeedUser `yaml:"users"`
}

// DefaultSeed is used when no users file is configured.
func DefaultSeed() []SeedUser {
	return []SeedUser{
		{Username: "user1@api.com", Password: "user", Roles: []string{"USER"}},
		{Username: "user2@api.com", Password: "user", Roles: []string{"USER"}},
		{Username: "user3@api.com", Password: "user", Roles: []string{"USER"}},
		{Username: "admin@api.com", Password: "admin", Roles: []string{"ADMIN"}},
	}
}

func LoadSeedFile(path string) ([]SeedUser, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var uf usersFile
	if err := yaml.Unmarshal(data, &uf); err != nil {
		return nil, fmt.Errorf("parse users file: %w", err)
	}
	if len(uf.Users) == 0 {
		return nil, errors.New("users file has no users")
	}
	return uf.Users, nil
}

var principalNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("mailgate/principal"))

// BuildPrincipals turns seed entries into principals. Ids default to a
// name-based UUID so they stay stable across restarts.
func BuildPrincipals(seeds []SeedUser, cost int) ([]Principal, error) {
	out := make([]Principal, 0, len(seeds))
	for _, s := range seeds {
		if s.Username == "" {
			return nil, errors.New("seed user without username")
		}
		p := Principal{Username: s.Username}

		if s.ID != "" {
			id, err := uuid.Parse(s.ID)
			if err != nil {
				return nil, fmt.Errorf("seed user %s: invalid id: %w", s.Username, err)
			}
			p.ID = id
		} else {
			p.ID = uuid.NewSHA1(principalNamespace, []byte(s.Username))
		}

		switch {
		case s.PasswordHash != "":
			if _, err := bcrypt.Cost([]byte(s.PasswordHash)); err != nil {
				return nil, fmt.Errorf("seed user %s: invalid password_hash: %w", s.Username, err)
			}
			p.PasswordHash = s.PasswordHash
		case s.Password != "":
			hash, err := bcrypt.GenerateFromPassword([]byte(s.Password), cost)
			if err != nil {
				return nil, fmt.Errorf("seed user %s: hash password: %w", s.Username, err)
			}
			p.PasswordHash = string(hash)
		default:
			return nil, fmt.Errorf("seed user %s has no password", s.Username)
		}

		for _, name := range s.Roles {
			role, err := ParseRole(name)
			if err != nil {
				return nil, fmt.Errorf("seed user %s: %w", s.Username, err)
			}
			p.Roles = append(p.Roles, role)
		}
		if len(p.Roles) == 0 {
			return nil, fmt.Errorf("seed user %s has no roles", s.Username)
		}
		out = append(out, p)
	}
	return out, nil
}
