package model

type Account struct {
	Email               string          `yaml:"email" json:"email"`
	Password            string          `yaml:"password" json:"-"`
	RememberLastSession bool            `yaml:"rememberLastSession" json:"rememberLastSession"`
	Secret              string          `yaml:"secret,omitempty" json:"-"`
	Cookies             []BrowserCookie `yaml:"cookies,omitempty" json:"cookies,omitempty"`

	// TwoFactorCode is derived from Secret right before a login attempt.
	TwoFactorCode string `yaml:"-" json:"-"`
}

func (a Account) HasSecret() bool {
	return len(a.Secret) > 0
}
