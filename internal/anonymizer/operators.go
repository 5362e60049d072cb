package anonymizer

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/nacl/secretbox"

	"github.com/dativo-io/veil/internal/cryptoutil"
)

// Operator names registered by default.
const (
	OperatorMask    = "mask"
	OperatorRedact  = "redact"
	OperatorReplace = "replace"
	OperatorHash    = "hash"
	OperatorKeep    = "keep"
	OperatorEncrypt = "encrypt"
)

// Parameter keys understood by the built-in operators.
const (
	ParamMaskingChar = "masking_char"
	ParamCharsToMask = "chars_to_mask"
	ParamFromEnd     = "from_end"
	ParamNewValue    = "new_value"
	ParamHashType    = "hash_type"
	ParamSalt        = "salt"
	ParamKey         = "key"
)

// Operator transforms the text of a single entity span.
type Operator interface {
	Name() string
	// Validate checks params without touching any text.
	Validate(params Params) error
	// Operate returns the replacement for value. entityType is the label of
	// the span being replaced.
	Operate(value, entityType string, params Params) (string, error)
}

type maskOperator struct{}

func (maskOperator) Name() string { return OperatorMask }

func (maskOperator) Validate(params Params) error {
	_, _, _, err := maskParams(params)
	return err
}

func maskParams(params Params) (char string, n int, fromEnd bool, err error) {
	if char, err = params.getString(ParamMaskingChar); err != nil {
		return
	}
	if utf8.RuneCountInString(char) != 1 {
		err = fmt.Errorf("%w: %s must be exactly one character, got %q", ErrInvalidParams, ParamMaskingChar, char)
		return
	}
	if n, err = params.getInt(ParamCharsToMask); err != nil {
		return
	}
	if n < 0 {
		err = fmt.Errorf("%w: %s must not be negative, got %d", ErrInvalidParams, ParamCharsToMask, n)
		return
	}
	fromEnd, err = params.getBool(ParamFromEnd)
	return
}

// Operate masks up to chars_to_mask characters of value, counted in runes
// from the start, or from the end when from_end is set.
func (maskOperator) Operate(value, _ string, params Params) (string, error) {
	char, n, fromEnd, err := maskParams(params)
	if err != nil {
		return "", err
	}
	runes := []rune(value)
	if n > len(runes) {
		n = len(runes)
	}
	mask := strings.Repeat(char, n)
	if fromEnd {
		return string(runes[:len(runes)-n]) + mask, nil
	}
	return mask + string(runes[n:]), nil
}

type redactOperator struct{}

func (redactOperator) Name() string                                  { return OperatorRedact }
func (redactOperator) Validate(Params) error                         { return nil }
func (redactOperator) Operate(_, _ string, _ Params) (string, error) { return "", nil }

type keepOperator struct{}

func (keepOperator) Name() string                                      { return OperatorKeep }
func (keepOperator) Validate(Params) error                             { return nil }
func (keepOperator) Operate(value, _ string, _ Params) (string, error) { return value, nil }

type replaceOperator struct{}

func (replaceOperator) Name() string { return OperatorReplace }

func (replaceOperator) Validate(params Params) error {
	if params.has(ParamNewValue) {
		_, err := params.getString(ParamNewValue)
		return err
	}
	return nil
}

// Operate returns new_value, or "<ENTITY_TYPE>" when new_value is unset.
func (replaceOperator) Operate(_, entityType string, params Params) (string, error) {
	if params.has(ParamNewValue) {
		return params.getString(ParamNewValue)
	}
	return "<" + entityType + ">", nil
}

type hashOperator struct{}

func (hashOperator) Name() string { return OperatorHash }

func (hashOperator) Validate(params Params) error {
	_, _, err := hashParams(params)
	return err
}

func hashParams(params Params) (hashType, salt string, err error) {
	hashType = "sha256"
	if params.has(ParamHashType) {
		if hashType, err = params.getString(ParamHashType); err != nil {
			return
		}
	}
	if hashType != "sha256" && hashType != "sha512" {
		err = fmt.Errorf("%w: %s must be sha256 or sha512, got %q", ErrInvalidParams, ParamHashType, hashType)
		return
	}
	if params.has(ParamSalt) {
		salt, err = params.getString(ParamSalt)
	}
	return
}

// Operate returns the lowercase hex digest of salt+value.
func (hashOperator) Operate(value, _ string, params Params) (string, error) {
	hashType, salt, err := hashParams(params)
	if err != nil {
		return "", err
	}
	if hashType == "sha512" {
		sum := sha512.Sum512([]byte(salt + value))
		return hex.EncodeToString(sum[:]), nil
	}
	sum := sha256.Sum256([]byte(salt + value))
	return hex.EncodeToString(sum[:]), nil
}

const nonceSize = 24

type encryptOperator struct{}

func (encryptOperator) Name() string { return OperatorEncrypt }

func (encryptOperator) Validate(params Params) error {
	_, err := encryptKey(params)
	return err
}

func encryptKey(params Params) (*[cryptoutil.KeySize]byte, error) {
	raw, err := params.getString(ParamKey)
	if err != nil {
		return nil, err
	}
	key, err := cryptoutil.ParseKey(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidParams, ParamKey, err)
	}
	return key, nil
}

// Operate seals value with NaCl secretbox under a random nonce and returns
// base64(nonce || box). Decrypt reverses it.
func (encryptOperator) Operate(value, _ string, params Params) (string, error) {
	key, err := encryptKey(params)
	if err != nil {
		return "", err
	}
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], []byte(value), &nonce, key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a token produced by the encrypt operator.
func Decrypt(key, token string) (string, error) {
	k, err := cryptoutil.ParseKey(key)
	if err != nil {
		return "", err
	}
	sealed, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("decoding token: %w", err)
	}
	if len(sealed) < nonceSize+secretbox.Overhead {
		return "", fmt.Errorf("token too short")
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, k)
	if !ok {
		return "", fmt.Errorf("token does not authenticate under this key")
	}
	return string(plain), nil
}
