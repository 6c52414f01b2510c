package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content hashes.
// The version suffix allows the hashed form to change later.
const (
	DomainProgram  = "notdec/program/v1"
	DomainFunction = "notdec/function/v1"
	DomainSummary  = "notdec/summary/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte (0x00) separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ProgramHash identifies a whole input program.
func ProgramHash(p *Program) (string, error) {
	canonical, err := MarshalCanonical(p)
	if err != nil {
		return "", fmt.Errorf("ProgramHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainProgram, canonical), nil
}

// FunctionHash identifies one function body together with the pointer
// size it was analysed under.
func FunctionHash(f *Function, pointerSize uint32) (string, error) {
	canonical, err := MarshalCanonical(struct {
		PointerSize uint32    `json:"pointer_size"`
		Function    *Function `json:"function"`
	}{pointerSize, f})
	if err != nil {
		return "", fmt.Errorf("FunctionHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainFunction, canonical), nil
}

// SummaryKey identifies the summary of an SCC. The key covers the SCC
// members and the summaries of every callee they instantiate, so a change
// anywhere below the SCC in the call graph gives a new key.
func SummaryKey(memberHashes []string, calleeKeys []string) (string, error) {
	canonical, err := MarshalCanonical(map[string]any{
		"members": memberHashes,
		"callees": calleeKeys,
		"engine":  EngineVersion,
	})
	if err != nil {
		return "", fmt.Errorf("SummaryKey: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainSummary, canonical), nil
}

// MustProgramHash is like ProgramHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustProgramHash(p *Program) string {
	h, err := ProgramHash(p)
	if err != nil {
		panic(err)
	}
	return h
}
