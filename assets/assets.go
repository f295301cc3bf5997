package assets

import (
	"bytes"
	"embed"
	"io"
	"io/fs"
)

var (
	//go:embed all:templates/email
	emailFS embed.FS

	//go:embed common-passwords.txt
	commonPasswords []byte
)

// EmailTemplates returns the email templates directory.
func EmailTemplates() fs.FS {
	sub, err := fs.Sub(emailFS, "templates/email")
	if err != nil {
		panic(err) // embedded path is static
	}
	return sub
}

// CommonPasswords returns the list of common passwords, one per line.
func CommonPasswords() io.Reader {
	return bytes.NewReader(commonPasswords)
}
