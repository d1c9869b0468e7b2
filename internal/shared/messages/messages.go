// Package messages holds user-facing copy: push notification templates and
// the actionable text shown for each error kind.
package messages

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

//go:embed default.json
var defaultJSON []byte

type MessageText struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type ErrorMessages struct {
	Auth               string `json:"auth"`
	InvalidToken       string `json:"invalid_token"`
	Provider           string `json:"provider"`
	PartialAggregation string `json:"partial_aggregation"`
	NotFound           string `json:"not_found"`
	BadRequest         string `json:"bad_request"`
	Internal           string `json:"internal"`
	LogoutFailed       string `json:"logout_failed"`
}

type Messages struct {
	InstitutionLinked   MessageText   `json:"institution_linked"`
	InstitutionUnlinked MessageText   `json:"institution_unlinked"`
	Errors              ErrorMessages `json:"errors"`
}

var (
	defaults    Messages
	defaultOnce sync.Once
	defaultErr  error
)

// Default returns the built-in copy.
func Default() *Messages {
	defaultOnce.Do(func() {
		defaultErr = json.Unmarshal(defaultJSON, &defaults)
	})
	if defaultErr != nil {
		panic(fmt.Sprintf("messages: embedded defaults are invalid: %v", defaultErr))
	}
	m := defaults
	return &m
}

// Load reads an override file on top of the built-in copy. Keys missing from
// the file keep their default text. An empty path returns the defaults.
func Load(path string) (*Messages, error) {
	m := Default()
	if path == "" {
		return m, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read messages file: %w", err)
	}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("failed to parse messages file: %w", err)
	}
	return m, nil
}
