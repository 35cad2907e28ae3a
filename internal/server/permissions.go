package server

import (
	"encoding/base64"
	"strings"

	"github.com/indigo-web/utils/strcomp"
	"github.com/indigo-web/webcore/http/status"
	"golang.org/x/crypto/bcrypt"
)

// authorize checks the credentials against the route's requirements, remembering the
// user and the token on success.
func (c *Connection) authorize() error {
	auth := c.route.Auth
	if auth == nil {
		return nil
	}

	request := c.request
	scheme, credentials, _ := strings.Cut(request.Headers.Value("authorization"), " ")
	credentials = strings.TrimSpace(credentials)

	switch {
	case len(auth.Basic) > 0 && strcomp.EqualFold(scheme, "basic"):
		if user, ok := checkBasic(auth.Basic, credentials); ok {
			request.User = user
			return nil
		}
	case auth.Bearer != nil && strcomp.EqualFold(scheme, "bearer"):
		if user, ok := auth.Bearer(credentials); ok {
			request.User = user
			request.Token = credentials
			return nil
		}
	}

	realm := strings.ReplaceAll(auth.Realm, `"`, `'`)
	if len(auth.Basic) > 0 {
		c.response.Header("WWW-Authenticate", `Basic realm="`+realm+`", charset="UTF-8"`)
	}

	if auth.Bearer != nil {
		c.response.Header("WWW-Authenticate", `Bearer realm="`+realm+`"`)
	}

	return status.ErrUnauthorized
}

func checkBasic(users map[string]string, credentials string) (string, bool) {
	decoded, err := base64.StdEncoding.DecodeString(credentials)
	if err != nil {
		return "", false
	}

	user, password, found := strings.Cut(string(decoded), ":")
	if !found {
		return "", false
	}

	hash, known := users[user]
	if !known {
		return "", false
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return "", false
	}

	return user, true
}
