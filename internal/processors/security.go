package processors

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"

	"fileforge/internal/catalog"
	"fileforge/internal/config"
	"fileforge/internal/services"
	"fileforge/internal/worker"
)

// eicarSignature is the standard antivirus test string; any file containing
// it is treated as malware.
const eicarSignature = `X5O!P%@AP[4\PZX54(P^)7CC)7}$EICAR-STANDARD-ANTIVIRUS-TEST-FILE!$H+H*`

// SecurityProcessor handles the security family: virus scan, encrypt,
// decrypt. Encryption is AES-256-GCM with the nonce prepended to the
// ciphertext.
type SecurityProcessor struct {
	key        []byte
	signatures [][]byte
}

// NewSecurityProcessor builds a security processor from configuration.
// An empty encryption key is allowed; encrypt/decrypt then fail with a
// configuration error.
func NewSecurityProcessor(cfg config.Security) (*SecurityProcessor, error) {
	p := &SecurityProcessor{
		signatures: [][]byte{[]byte(eicarSignature)},
	}
	if cfg.EncryptionKey != "" {
		key, err := hex.DecodeString(cfg.EncryptionKey)
		if err != nil || len(key) != 32 {
			return nil, fmt.Errorf("security: encryption key must be 32 hex-encoded bytes")
		}
		p.key = key
	}
	for _, sig := range cfg.ScanSignatures {
		if sig != "" {
			p.signatures = append(p.signatures, []byte(sig))
		}
	}
	return p, nil
}

func (p *SecurityProcessor) Kinds() []catalog.ActionKind {
	return []catalog.ActionKind{
		catalog.ActionVirusScan,
		catalog.ActionEncrypt,
		catalog.ActionDecrypt,
	}
}

func (p *SecurityProcessor) Process(ctx context.Context, req worker.Request) (*worker.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, services.Wrap(services.ErrTimeout, "security", string(req.Job.Kind), "", err)
	}
	data, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "security", "read input", "", err)
	}

	switch req.Job.Kind {
	case catalog.ActionVirusScan:
		return p.scan(data)
	case catalog.ActionEncrypt:
		return p.encrypt(data, req)
	case catalog.ActionDecrypt:
		return p.decrypt(data, req)
	default:
		return nil, services.Wrap(services.ErrValidation, "security", "dispatch",
			"unsupported kind "+string(req.Job.Kind), nil)
	}
}

// scan succeeds with no output when the content is clean. A signature hit
// is a content failure, which fails the job and short-circuits the
// pipeline.
func (p *SecurityProcessor) scan(data []byte) (*worker.Result, error) {
	for i, sig := range p.signatures {
		if bytes.Contains(data, sig) {
			label := "configured signature"
			if i == 0 {
				label = "EICAR test signature"
			}
			return nil, services.Wrap(services.ErrContent, "security", "scan",
				"malware detected: "+label, nil)
		}
	}
	return nil, nil
}

func (p *SecurityProcessor) encrypt(data []byte, req worker.Request) (*worker.Result, error) {
	gcm, err := p.cipher()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, services.Wrap(services.ErrTransient, "security", "encrypt", "nonce", err)
	}
	sealed := gcm.Seal(nonce, nonce, data, nil)
	return &worker.Result{
		Output:      sealed,
		OutputName:  req.Input.OriginalName + ".enc",
		ContentType: "application/octet-stream",
	}, nil
}

func (p *SecurityProcessor) decrypt(data []byte, req worker.Request) (*worker.Result, error) {
	gcm, err := p.cipher()
	if err != nil {
		return nil, err
	}
	if len(data) < gcm.NonceSize() {
		return nil, services.Wrap(services.ErrContent, "security", "decrypt",
			"input shorter than nonce", nil)
	}
	nonce, sealed := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrContent, "security", "decrypt",
			"authentication failed; wrong key or corrupted input", err)
	}

	name := req.Input.OriginalName
	if trimmed, ok := trimSuffix(name, ".enc"); ok {
		name = trimmed
	} else {
		name = derivedName(name, "_decrypted", "bin")
	}
	return &worker.Result{
		Output:      plain,
		OutputName:  name,
		ContentType: "application/octet-stream",
	}, nil
}

func (p *SecurityProcessor) cipher() (cipher.AEAD, error) {
	if len(p.key) == 0 {
		return nil, services.Wrap(services.ErrConfiguration, "security", "cipher",
			"no encryption key configured", nil)
	}
	block, err := aes.NewCipher(p.key)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "security", "cipher", "", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "security", "cipher", "", err)
	}
	return gcm, nil
}

func trimSuffix(s, suffix string) (string, bool) {
	if len(s) > len(suffix) && s[len(s)-len(suffix):] == suffix {
		return s[:len(s)-len(suffix)], true
	}
	return s, false
}
