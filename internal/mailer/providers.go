package mailer

import "strings"

type Provider struct {
	Host   string
	Port   int
	Secure bool
}

var providers = map[string]Provider{
	"gmail":   {Host: "smtp.gmail.com", Port: 465, Secure: true},
	"outlook": {Host: "smtp.office365.com", Port: 587},
	"hotmail": {Host: "smtp-mail.outlook.com", Port: 587},
	"yahoo":   {Host: "smtp.mail.yahoo.com", Port: 465, Secure: true},
	"icloud":  {Host: "smtp.mail.me.com", Port: 587},
	"yandex":  {Host: "smtp.yandex.ru", Port: 465, Secure: true},
	"mailru":  {Host: "smtp.mail.ru", Port: 465, Secure: true},
	"zoho":    {Host: "smtp.zoho.com", Port: 465, Secure: true},
}

// LookupProvider resolves a webmail service name, case-insensitively.
func LookupProvider(name string) (Provider, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.ReplaceAll(key, ".", "")
	key = strings.ReplaceAll(key, " ", "")
	p, ok := providers[key]
	return p, ok
}
