package util

import "runtime"

// SecureString holds sensitive bytes such as unseal key shares or tokens.
// Zero clears the memory once the value is no longer needed, best effort
// given the garbage collector may have copied it.
type SecureString []byte

// NewSecureString copies b and zeroes the original.
func NewSecureString(b []byte) SecureString {
	if b == nil {
		return nil
	}
	ss := make(SecureString, len(b))
	copy(ss, b)
	zeroBytes(b)
	return ss
}

// SecureStrings converts plain strings, e.g. key shares decoded from JSON.
func SecureStrings(in []string) []SecureString {
	out := make([]SecureString, len(in))
	for i, s := range in {
		out[i] = NewSecureString([]byte(s))
	}
	return out
}

// String exposes the value. Use only at the boundary where a plain string is
// required, such as a request body.
func (ss SecureString) String() string {
	return string(ss)
}

// Zero clears the bytes and nils the slice.
func (ss *SecureString) Zero() {
	if ss == nil || *ss == nil {
		return
	}
	zeroBytes(*ss)
	*ss = nil
}

// ZeroAll clears every value in the slice.
func ZeroAll(ss []SecureString) {
	for i := range ss {
		ss[i].Zero()
	}
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}
