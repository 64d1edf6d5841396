package dataconnect

import "encoding/base64"

// secret keeps the client secret out of casual dumps of the struct. It is an
// encoding, not encryption.
type secret string

func newSecret(s string) secret {
	return secret(base64.StdEncoding.EncodeToString([]byte(s)))
}

func (s secret) reveal() string {
	b, err := base64.StdEncoding.DecodeString(string(s))
	if err != nil {
		// only newSecret builds values so this cannot happen
		return ""
	}
	return string(b)
}

// String implements fmt.Stringer so the secret never ends up in logs.
func (s secret) String() string {
	return "***"
}
