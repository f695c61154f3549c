package processors

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"fileforge/internal/catalog"
	"fileforge/internal/config"
	"fileforge/internal/services"
	"fileforge/internal/worker"
)

var testKey = strings.Repeat("ab", 32)

func securityRequest(kind catalog.ActionKind, name string, data []byte) worker.Request {
	return worker.Request{
		Job:   &catalog.Job{Kind: kind},
		Input: &catalog.File{OriginalName: name, SizeBytes: int64(len(data))},
		Body:  bytes.NewReader(data),
	}
}

func TestScanCleanFileHasNoOutput(t *testing.T) {
	p, err := NewSecurityProcessor(config.Security{})
	if err != nil {
		t.Fatalf("new processor: %v", err)
	}
	result, err := p.Process(context.Background(),
		securityRequest(catalog.ActionVirusScan, "doc.txt", []byte("harmless text")))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result != nil {
		t.Fatalf("clean scan should produce no output, got %+v", result)
	}
}

func TestScanDetectsEicar(t *testing.T) {
	p, err := NewSecurityProcessor(config.Security{})
	if err != nil {
		t.Fatalf("new processor: %v", err)
	}
	payload := []byte("prefix " + eicarSignature + " suffix")
	_, err = p.Process(context.Background(),
		securityRequest(catalog.ActionVirusScan, "evil.com", payload))
	if !errors.Is(err, services.ErrContent) {
		t.Fatalf("expected content error for EICAR, got %v", err)
	}
}

func TestScanDetectsConfiguredSignature(t *testing.T) {
	p, err := NewSecurityProcessor(config.Security{ScanSignatures: []string{"FORBIDDEN-BYTES"}})
	if err != nil {
		t.Fatalf("new processor: %v", err)
	}
	_, err = p.Process(context.Background(),
		securityRequest(catalog.ActionVirusScan, "doc.bin", []byte("xxFORBIDDEN-BYTESxx")))
	if !errors.Is(err, services.ErrContent) {
		t.Fatalf("expected content error, got %v", err)
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	p, err := NewSecurityProcessor(config.Security{EncryptionKey: testKey})
	if err != nil {
		t.Fatalf("new processor: %v", err)
	}
	plain := []byte("secret payload")

	sealed, err := p.Process(context.Background(),
		securityRequest(catalog.ActionEncrypt, "notes.txt", plain))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if bytes.Contains(sealed.Output, plain) {
		t.Fatal("ciphertext contains plaintext")
	}
	if sealed.OutputName != "notes.txt.enc" {
		t.Fatalf("output name = %s", sealed.OutputName)
	}

	opened, err := p.Process(context.Background(),
		securityRequest(catalog.ActionDecrypt, sealed.OutputName, sealed.Output))
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(opened.Output, plain) {
		t.Fatalf("round trip mismatch: %q", opened.Output)
	}
	if opened.OutputName != "notes.txt" {
		t.Fatalf("decrypted name = %s", opened.OutputName)
	}
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	p, err := NewSecurityProcessor(config.Security{EncryptionKey: testKey})
	if err != nil {
		t.Fatalf("new processor: %v", err)
	}
	sealed, err := p.Process(context.Background(),
		securityRequest(catalog.ActionEncrypt, "notes.txt", []byte("secret")))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	tampered := append([]byte{}, sealed.Output...)
	tampered[len(tampered)-1] ^= 0xff

	_, err = p.Process(context.Background(),
		securityRequest(catalog.ActionDecrypt, "notes.txt.enc", tampered))
	if !errors.Is(err, services.ErrContent) {
		t.Fatalf("expected content error for tampered input, got %v", err)
	}
}

func TestEncryptWithoutKeyIsConfigurationError(t *testing.T) {
	p, err := NewSecurityProcessor(config.Security{})
	if err != nil {
		t.Fatalf("new processor: %v", err)
	}
	_, err = p.Process(context.Background(),
		securityRequest(catalog.ActionEncrypt, "notes.txt", []byte("secret")))
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestNewSecurityProcessorRejectsBadKey(t *testing.T) {
	if _, err := NewSecurityProcessor(config.Security{EncryptionKey: "zz"}); err == nil {
		t.Fatal("expected error for malformed key")
	}
	short := hex.EncodeToString([]byte("too short"))
	if _, err := NewSecurityProcessor(config.Security{EncryptionKey: short}); err == nil {
		t.Fatal("expected error for short key")
	}
}
