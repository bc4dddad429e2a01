package protocol

import (
	"crypto/md5"
	"encoding/hex"
)

// authenticate drives the authentication sub-phase of the startup handshake
// (§4.3 step 3): it reads Authentication messages until AuthOk, answering
// Cleartext and MD5 challenges. SCRAM/GSS/SSPI/Kerberos are observed (the
// frame decodes cleanly so the byte stream stays in sync) but not
// completed — any authentication kind other than Cleartext/MD5/Ok fails
// with KindInternal, matching the documented non-goal that SASL framing is
// recognized without a completed exchange.
func (c *Conn) authenticate(user, password string) error {
	for {
		msg, err := c.recvDuringStartup()
		if err != nil {
			return err
		}
		auth, ok := msg.(Authentication)
		if !ok {
			return newErr(KindInternal, "expected Authentication message, got %T", msg)
		}
		switch auth.Kind {
		case AuthOk:
			return nil
		case AuthCleartextPassword:
			if err := c.writeDirect(PasswordMessage{Password: []byte(password)}); err != nil {
				return err
			}
		case AuthMD5Password:
			digest := md5Password(user, password, auth.Salt[:])
			if err := c.writeDirect(PasswordMessage{Password: []byte(digest)}); err != nil {
				return err
			}
		default:
			return newErr(KindInternal, "unsupported authentication method (kind %d)", auth.Kind)
		}
	}
}

// md5Password computes "md5" + md5_hex(md5_hex(password||user) || salt),
// PostgreSQL's password-hashing formula for AuthenticationMD5Password.
func md5Password(user, password string, salt []byte) string {
	inner := md5.Sum([]byte(password + user))
	innerHex := hex.EncodeToString(inner[:])
	outer := md5.Sum(append([]byte(innerHex), salt...))
	return "md5" + hex.EncodeToString(outer[:])
}
