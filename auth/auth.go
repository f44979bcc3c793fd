package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
)

func New(apiKeyToUserName map[string]string, next http.Handler) *Auth {
	return &Auth{
		Next:             next,
		APIKeyToUserName: apiKeyToUserName,
	}
}

// Optional returns next unchanged when no API keys are configured.
func Optional(apiKeyToUserName map[string]string, next http.Handler) http.Handler {
	if len(apiKeyToUserName) == 0 {
		return next
	}
	return New(apiKeyToUserName, next)
}

type Auth struct {
	Next             http.Handler
	APIKeyToUserName map[string]string
}

// LoadFromFile reads a JSON object of API keys to user names. An empty name returns no keys.
func LoadFromFile(name string) (apiKeyToUserName map[string]string, err error) {
	if name == "" {
		return nil, nil
	}
	f, err := os.OpenFile(name, os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	m := make(map[string]string)
	if err = json.NewDecoder(f).Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to decode API keys file %q: %w", name, err)
	}
	for k, v := range m {
		if strings.TrimSpace(k) == "" || v == "" {
			return nil, fmt.Errorf("API keys file %q contains an empty key or user name", name)
		}
	}
	return m, nil
}

type userContextKey int

const userKey userContextKey = 0

func GetUser(r *http.Request) (user string, ok bool) {
	user, ok = r.Context().Value(userKey).(string)
	return
}

func (a *Auth) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user, ok := a.APIKeyToUserName[strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")]
	if !ok {
		w.Header().Set("WWW-Authenticate", "Bearer")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	r = r.WithContext(context.WithValue(r.Context(), userKey, user))
	a.Next.ServeHTTP(w, r)
}
