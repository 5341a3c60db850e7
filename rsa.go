package authcode

import (
	"crypto/rsa"

	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"
)

func keyFingerprint(k *rsa.PublicKey) (string, error) {
	p, err := ssh.NewPublicKey(k)
	if err != nil {
		return "", errors.Wrap(err, "Error creating SSH public key")
	}
	return ssh.FingerprintSHA256(p), nil
}
