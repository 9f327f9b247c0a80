package model

import "time"

type EmailSettings struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Email    string `yaml:"email" json:"email"`
	AuthCode string `yaml:"authCode,omitempty" json:"authCode,omitempty"`
	// To defaults to Email.
	To string `yaml:"to,omitempty" json:"to,omitempty"`
}

// LoginOptions is handed through to the interactive login adapter.
type LoginOptions struct {
	Cookies      []BrowserCookie
	Headless     bool
	BrowserBin   string
	UserDataDir  string
	LoginURL     string
	ExchangeURL  string
	LoginTimeout time.Duration
}
