package logger

import "strings"

// CensorEmail masks an email address keeping only the first and last
// character of the local part and of the domain.
// "alexa@google.com" → "a***a@g********m"
func CensorEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok {
		return "***@***"
	}
	return censorWord(local) + "@" + censorWord(domain)
}

func censorWord(word string) string {
	if len(word) <= 2 {
		return strings.Repeat("*", len(word))
	}
	return word[:1] + strings.Repeat("*", len(word)-2) + word[len(word)-1:]
}
